package testsupport

import (
	"context"
	"testing"

	"taskmill/internal/config"
	"taskmill/internal/queue"
)

// MustOpenStore opens the task store for a test config and closes it when the
// test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustEnqueue pushes one task through a throwaway manager and returns its id.
func MustEnqueue(t testing.TB, store *queue.Store, group string, def queue.Definition) int64 {
	t.Helper()

	mgr, err := queue.NewManager(store, group)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	id, err := mgr.Enqueue(context.Background(), def)
	if err != nil {
		t.Fatalf("enqueue %q: %v", def.Handler, err)
	}
	if id == 0 {
		t.Fatalf("enqueue %q returned id 0", def.Handler)
	}
	return id
}

// MustGet fetches a task that is expected to exist.
func MustGet(t testing.TB, store *queue.Store, group string, id int64) *queue.Task {
	t.Helper()

	task, err := store.Get(context.Background(), group, id)
	if err != nil {
		t.Fatalf("get task %d: %v", id, err)
	}
	if task == nil {
		t.Fatalf("task %d not found in group %q", id, group)
	}
	return task
}
