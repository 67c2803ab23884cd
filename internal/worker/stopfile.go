package worker

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"taskmill/internal/logging"
)

// stopWatcher signals when the stop file appears. fsnotify watches the parent
// directory because the file itself does not exist until an operator creates
// it. The poll loop also stats the file directly, so a failed watcher only
// degrades stop latency, never correctness.
type stopWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	events  chan struct{}
	done    chan struct{}
}

// newStopWatcher returns nil when the stop file is not configured or the
// watcher cannot start; the nil receiver is safe to use.
func newStopWatcher(path string, logger *slog.Logger) *stopWatcher {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("stop file watcher unavailable; falling back to polling", logging.Error(err))
		return nil
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		logger.Warn("cannot watch stop file directory; falling back to polling", logging.Error(err))
		fw.Close()
		return nil
	}

	sw := &stopWatcher{
		path:    path,
		watcher: fw,
		events:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go sw.watch()
	return sw
}

func (s *stopWatcher) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			select {
			case s.events <- struct{}{}:
			default:
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// C returns the signal channel. Nil receivers return a nil channel, which
// blocks forever in a select.
func (s *stopWatcher) C() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.events
}

func (s *stopWatcher) Close() {
	if s == nil {
		return
	}
	close(s.done)
	s.watcher.Close()
}
