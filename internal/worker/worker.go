// Package worker runs the poll/execute loop for one task group. Scheduling is
// cooperative and single-threaded: tasks in a batch execute strictly
// sequentially, and concurrency comes from running one worker process per
// group under the group's exclusive lock.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskmill/internal/handler"
	"taskmill/internal/logging"
	"taskmill/internal/queue"
)

// Mode selects the failure-propagation policy.
type Mode int

const (
	// ModeBatch is the CLI/daemon policy: one bad task never stops the
	// worker; failures are logged or reported through callbacks.
	ModeBatch Mode = iota
	// ModeEmbedded is the synchronous policy: results accumulate in memory
	// and the first task failure is returned to the waiting caller.
	ModeEmbedded
)

// ErrStale marks a task found already running at pickup: a previous worker
// died mid-flight. The task is failed instead of re-executed so a resumed
// worker never silently runs the same work twice.
var ErrStale = errors.New("stale running task")

// Result captures one task execution in embedded mode.
type Result struct {
	TaskID   int64
	Response any
	Output   string
	Err      error
}

// Options configures a worker.
type Options struct {
	Group        string
	BatchSize    int
	MaxIdle      int
	MinSleep     time.Duration
	MaxSleep     time.Duration
	StopFile     string
	EventLogPath string // per-group event log, batch mode only
	Mode         Mode
	Out          io.Writer // terminal handle injected into worker-aware handlers
	OnComplete   func(task *queue.Task, response any)
	OnError      func(task *queue.Task, err error)
}

// Worker polls the store for executable tasks in its group and runs them.
type Worker struct {
	store    *queue.Store
	registry *handler.Registry
	logger   *slog.Logger
	opts     Options
	runID    string
	reporter *Reporter

	mu      sync.Mutex
	results map[int64]Result
}

// New constructs a worker for a group.
func New(store *queue.Store, registry *handler.Registry, logger *slog.Logger, opts Options) (*Worker, error) {
	if store == nil || registry == nil {
		return nil, errors.New("worker requires a store and a handler registry")
	}
	if strings.TrimSpace(opts.Group) == "" {
		return nil, errors.New("group name is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 10
	}
	if opts.MinSleep <= 0 {
		opts.MinSleep = 50 * time.Millisecond
	}
	if opts.MaxSleep < opts.MinSleep {
		opts.MaxSleep = time.Second
	}
	if opts.Mode == ModeEmbedded {
		// Event logging is a batch-mode facility.
		opts.EventLogPath = ""
	}

	runID := uuid.NewString()
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithComponent(logger, "worker").With(
		logging.String(logging.FieldGroup, opts.Group),
		logging.String(logging.FieldRunID, runID),
	)

	return &Worker{
		store:    store,
		registry: registry,
		logger:   logger,
		opts:     opts,
		runID:    runID,
		reporter: NewReporter(logger, runID, opts.EventLogPath),
		results:  make(map[int64]Result),
	}, nil
}

// RunID identifies this worker instance in logs and the event log.
func (w *Worker) RunID() string {
	return w.runID
}

// Results returns the per-task outcomes collected in embedded mode, keyed by
// task id.
func (w *Worker) Results() map[int64]Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make(map[int64]Result, len(w.results))
	for id, res := range w.results {
		cp[id] = res
	}
	return cp
}

// Run executes the poll loop until a stop condition: context cancellation
// (signal), the stop-signal file appearing, or MaxIdle consecutive empty
// polls. Database errors propagate and stop the worker. Shutdown always
// reverts tasks this worker left running.
func (w *Worker) Run(ctx context.Context) error {
	defer w.Shutdown()

	watcher := newStopWatcher(w.opts.StopFile, w.logger)
	defer watcher.Close()

	w.logger.Info("worker started")

	sleep := w.opts.MinSleep
	idle := 0
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping on signal")
			return nil
		}
		if w.stopFilePresent() {
			w.logger.Info("worker stopping on stop file", logging.String("stop_file", w.opts.StopFile))
			return nil
		}

		batch, err := w.store.List(ctx, w.opts.Group, queue.FilterExecutable, w.opts.BatchSize, 0)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch executable tasks: %w", err)
		}

		if len(batch) == 0 {
			idle++
			if idle >= w.opts.MaxIdle {
				w.logger.Info("worker stopping after idle polls", logging.Int("idle_polls", idle))
				return nil
			}
			if !w.sleepFor(ctx, watcher, sleep) {
				return nil
			}
			continue
		}
		idle = 0

		executed := 0
		for _, task := range batch {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping on signal")
				return nil
			}
			ok, err := w.executeTask(ctx, task)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if ok {
				executed++
			}
		}

		sleep = nextSleep(sleep, executed, len(batch), w.opts.MinSleep, w.opts.MaxSleep)
		if !w.sleepFor(ctx, watcher, sleep) {
			return nil
		}
	}
}

// RunOnce performs a single pass over the currently executable tasks. Used in
// embedded mode where the caller waits synchronously: the first task failure
// is returned immediately. Returns the number of tasks that completed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.store.List(ctx, w.opts.Group, queue.FilterExecutable, w.opts.BatchSize, 0)
	if err != nil {
		return 0, fmt.Errorf("fetch executable tasks: %w", err)
	}

	executed := 0
	for _, task := range batch {
		ok, err := w.executeTask(ctx, task)
		if err != nil {
			return executed, err
		}
		if ok {
			executed++
		}
		if w.opts.Mode == ModeEmbedded {
			if res, recorded := w.result(task.ID); recorded && res.Err != nil {
				return executed, res.Err
			}
		}
	}
	return executed, nil
}

// Shutdown reverts every task this worker left running back to pending with
// outputs cleared, so a new worker instance can pick them up safely. Called
// automatically when Run returns.
func (w *Worker) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reverted, err := w.store.RevertRunning(ctx, w.opts.Group)
	if err != nil {
		w.logger.Error("failed to revert running tasks", logging.Error(err))
	} else if reverted > 0 {
		w.logger.Info("reverted running tasks to pending", logging.Int64("count", reverted))
	}
	w.reporter.Close()
}

func (w *Worker) stopFilePresent() bool {
	if strings.TrimSpace(w.opts.StopFile) == "" {
		return false
	}
	_, err := os.Stat(w.opts.StopFile)
	return err == nil
}

// sleepFor blocks between poll cycles. Returns false when the worker should
// stop instead of polling again.
func (w *Worker) sleepFor(ctx context.Context, watcher *stopWatcher, d time.Duration) bool {
	select {
	case <-ctx.Done():
		w.logger.Info("worker stopping on signal")
		return false
	case <-watcher.C():
		w.logger.Info("worker stopping on stop file", logging.String("stop_file", w.opts.StopFile))
		return false
	case <-time.After(d):
		return true
	}
}

// executeTask runs one task through the status machine. The returned error is
// infrastructure-level only (store unavailable); handler failures are
// absorbed into the task row and the reporter.
func (w *Worker) executeTask(ctx context.Context, task *queue.Task) (bool, error) {
	logger := w.logger.With(
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldHandler, task.Handler),
	)

	if task.Status == queue.StatusRunning {
		// A previous worker crashed mid-flight. Fail the task rather than
		// risk running it a second time.
		outputs := queue.EncodeOutputs(ErrStale.Error(), "")
		if _, err := w.store.UpdateStatus(ctx, w.opts.Group, task.ID, queue.StatusFailed, queue.StatusFilter(queue.StatusRunning), &outputs); err != nil {
			return false, err
		}
		logger.Warn("stale running task marked failed")
		w.recordFailure(task, ErrStale)
		return false, nil
	}

	claimed, err := w.store.UpdateStatus(ctx, w.opts.Group, task.ID, queue.StatusRunning, queue.StatusFilter(task.Status), nil)
	if err != nil {
		return false, err
	}
	if !claimed {
		logger.Debug("task changed state before pickup; skipping")
		return false, nil
	}
	w.reporter.TaskStarted(task)

	resolved, resolveErr := w.resolve(task.Handler)
	if resolveErr != nil {
		logger.Warn("handler did not resolve", logging.Error(resolveErr))
		return false, w.finishFailed(ctx, task, resolveErr, "")
	}

	args, err := task.Arguments()
	if err != nil {
		logger.Warn("stored arguments are corrupt", logging.Error(err))
		return false, w.finishFailed(ctx, task, err, "")
	}

	var capture bytes.Buffer
	out := io.Writer(&capture)
	if w.opts.Out != nil {
		out = io.MultiWriter(w.opts.Out, &capture)
	}

	started := time.Now()
	response, execErr := invoke(resolved, &handler.Invocation{Ctx: ctx, Args: args, Out: out})
	output := capture.String()

	if execErr != nil {
		logger.Warn("task failed",
			logging.Error(execErr),
			logging.Duration("task_duration", time.Since(started)),
		)
		return false, w.finishFailed(ctx, task, execErr, output)
	}

	autoDelete := task.AutoDelete
	if pref, declared := resolved.AutoDeleteOverride(); declared {
		autoDelete = pref
	}

	if autoDelete && !task.IsRecurring() {
		if _, err := w.store.Delete(ctx, w.opts.Group, task.ID); err != nil {
			return false, err
		}
	} else {
		outputs := queue.EncodeOutputs(response, output)
		if _, err := w.store.UpdateStatus(ctx, w.opts.Group, task.ID, queue.StatusCompleted, queue.StatusFilter(queue.StatusRunning), &outputs); err != nil {
			return false, err
		}
	}

	logger.Info("task completed", logging.Duration("task_duration", time.Since(started)))
	w.reporter.TaskFinished(task, "completed", nil)
	w.record(task.ID, Result{TaskID: task.ID, Response: response, Output: output})
	if w.opts.OnComplete != nil {
		w.opts.OnComplete(task, response)
	}
	return true, nil
}

func (w *Worker) resolve(ref string) (*handler.Resolved, error) {
	parsed, err := handler.ParseRef(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", handler.ErrUnresolvable, err)
	}
	return w.registry.Resolve(parsed)
}

// invoke calls the handler, converting a panic into an error so one bad task
// cannot take the worker down.
func invoke(resolved *handler.Resolved, inv *handler.Invocation) (response any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return resolved.Invoke(inv)
}

// finishFailed persists a failure outcome and reports it. Only store-level
// errors are returned.
func (w *Worker) finishFailed(ctx context.Context, task *queue.Task, cause error, output string) error {
	outputs := queue.EncodeOutputs(cause.Error(), output)
	if _, err := w.store.UpdateStatus(ctx, w.opts.Group, task.ID, queue.StatusFailed, queue.StatusFilter(queue.StatusRunning), &outputs); err != nil {
		return err
	}
	w.reporter.TaskFinished(task, "failed", cause)
	w.recordFailure(task, cause)
	return nil
}

// recordFailure routes a failure to exactly one place: the error callback
// when the caller supplied one, a log notice otherwise.
func (w *Worker) recordFailure(task *queue.Task, cause error) {
	w.record(task.ID, Result{TaskID: task.ID, Err: cause})
	if w.opts.OnError != nil {
		w.opts.OnError(task, cause)
		return
	}
	w.logger.Warn("task failure recorded",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.Error(cause),
	)
}

func (w *Worker) record(id int64, res Result) {
	if w.opts.Mode != ModeEmbedded {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results[id] = res
}

func (w *Worker) result(id int64) (Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	res, ok := w.results[id]
	return res, ok
}
