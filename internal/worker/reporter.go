package worker

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"taskmill/internal/logging"
	"taskmill/internal/queue"
)

// Reporter appends task lifecycle events to a per-group event log. The log is
// an append-only line protocol meant for operators tailing a run; structured
// logging stays on the worker's own logger. A Reporter with no path is a
// no-op.
type Reporter struct {
	logger *slog.Logger
	runID  string
	path   string

	mu   sync.Mutex
	file *os.File
}

func NewReporter(logger *slog.Logger, runID, path string) *Reporter {
	return &Reporter{logger: logger, runID: runID, path: path}
}

// TaskStarted records a pickup event.
func (r *Reporter) TaskStarted(task *queue.Task) {
	r.write(task, "start", "")
}

// TaskFinished records a terminal event with its outcome.
func (r *Reporter) TaskFinished(task *queue.Task, outcome string, cause error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	r.write(task, outcome, detail)
}

func (r *Reporter) write(task *queue.Task, event, detail string) {
	if r.path == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			r.disable(err)
			return
		}
		f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			r.disable(err)
			return
		}
		r.file = f
	}

	line := fmt.Sprintf("%s run=%s task=%d handler=%s event=%s",
		time.Now().UTC().Format(time.RFC3339),
		r.runID, task.ID, task.Handler, event)
	if detail != "" {
		line += fmt.Sprintf(" detail=%q", detail)
	}
	if _, err := fmt.Fprintln(r.file, line); err != nil {
		r.disable(err)
	}
}

// disable turns the reporter off after an I/O error so one bad disk does not
// spam every subsequent task.
func (r *Reporter) disable(err error) {
	r.logger.Warn("event log disabled", logging.String("path", r.path), logging.Error(err))
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	r.path = ""
}

func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}
