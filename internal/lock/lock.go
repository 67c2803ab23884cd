// Package lock provides file-based mutual exclusion across OS processes.
// Each worker group owns one advisory lock file; holding it guarantees at
// most one live worker per group without a coordination service.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// Manager wraps a non-blocking advisory file lock scoped to one group.
type Manager struct {
	path string
	lock *flock.Flock
}

// New builds a lock manager for a group. The lock file lives at
// <dir>/<group>.lock.
func New(dir, group string) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("lock directory is required")
	}
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, errors.New("group name is required")
	}
	if strings.ContainsAny(group, `/\`) {
		return nil, fmt.Errorf("group name %q is not a valid lock identity", group)
	}

	path := filepath.Join(dir, group+".lock")
	return &Manager{
		path: path,
		lock: flock.New(path),
	}, nil
}

// Path returns the lock file location.
func (m *Manager) Path() string {
	return m.path
}

// Lock attempts to acquire the exclusive lock without blocking, creating the
// lock directory and file as needed. Returns false when another process holds
// it.
func (m *Manager) Lock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := m.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

// IsLocked probes whether any process holds the lock, without acquiring
// ownership: a speculative try-lock that is released immediately on success.
func (m *Manager) IsLocked() (bool, error) {
	if _, err := os.Stat(m.path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	probe := flock.New(m.path)
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		if err := probe.Unlock(); err != nil {
			return false, fmt.Errorf("release probe: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Unlock releases the held lock and removes the lock file.
func (m *Manager) Unlock() error {
	if err := m.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
