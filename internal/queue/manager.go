package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskmill/internal/handler"
)

// Definition describes work to enqueue. Zero values fall back to the
// manager's defaults.
type Definition struct {
	Handler    string
	Args       []any
	Schedule   any // absolute time, Unix timestamp, relative expression, or cron spec
	Priority   int
	Forever    int // recurrence interval in minutes, 0 for one-shot
	Retries    int
	AutoDelete bool
}

// Manager is the enqueue API for one group: it validates definitions and
// funnels them into the store. Constructed once per group and handed to
// whoever enqueues; there is no hidden global instance.
type Manager struct {
	store  *Store
	group  string
	ignore map[string]struct{}

	mu     sync.Mutex
	staged []Definition
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithIgnoreList suppresses enqueues for the named handlers; Enqueue returns
// id 0 for them without touching storage.
func WithIgnoreList(handlers []string) ManagerOption {
	return func(m *Manager) {
		for _, name := range handlers {
			trimmed := strings.TrimSpace(name)
			if trimmed != "" {
				m.ignore[trimmed] = struct{}{}
			}
		}
	}
}

// NewManager constructs the enqueue API for a group.
func NewManager(store *Store, group string, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, configurationError("manager requires a store")
	}
	if strings.TrimSpace(group) == "" {
		return nil, configurationError("group name is required")
	}
	m := &Manager{
		store:  store,
		group:  strings.TrimSpace(group),
		ignore: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Group returns the group this manager is scoped to.
func (m *Manager) Group() string {
	return m.group
}

// Store exposes the underlying store for worker and CLI wiring.
func (m *Manager) Store() *Store {
	return m.store
}

// Enqueue validates a definition and durably inserts it, deduplicating on
// (group, signature). Returns 0 when the handler is empty or ignore-listed.
func (m *Manager) Enqueue(ctx context.Context, def Definition) (int64, error) {
	task, err := m.build(def, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if task == nil {
		return 0, nil
	}
	return m.store.InsertOrReset(ctx, task)
}

// Stage appends a definition to the in-memory staging list without touching
// storage. Staged definitions persist on Flush.
func (m *Manager) Stage(def Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = append(m.staged, def)
}

// Staged returns a copy of the definitions collected so far.
func (m *Manager) Staged() []Definition {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Definition, len(m.staged))
	copy(cp, m.staged)
	return cp
}

// Flush enqueues all staged definitions in one transaction and clears the
// staging list on success.
func (m *Manager) Flush(ctx context.Context) (int, error) {
	m.mu.Lock()
	staged := m.staged
	m.mu.Unlock()

	count, err := m.BatchEnqueue(ctx, staged)
	if err != nil {
		return count, err
	}

	m.mu.Lock()
	m.staged = nil
	m.mu.Unlock()
	return count, nil
}

// BatchEnqueue inserts multiple definitions inside a single transaction. Any
// validation or storage failure rolls the whole batch back; the transaction
// commits only when at least one insertion succeeded. Returns the number of
// tasks actually inserted.
func (m *Manager) BatchEnqueue(ctx context.Context, defs []Definition) (int, error) {
	if len(defs) == 0 {
		return 0, nil
	}
	ctx = ensureContext(ctx)

	now := time.Now().UTC()
	tasks := make([]*Task, 0, len(defs))
	for _, def := range defs {
		task, err := m.build(def, now)
		if err != nil {
			return 0, err
		}
		if task == nil {
			continue
		}
		tasks = append(tasks, task)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, connectionError("begin batch tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, task := range tasks {
		if _, err := m.store.insertOrReset(ctx, tx, task); err != nil {
			return 0, fmt.Errorf("batch enqueue: %w", err)
		}
		inserted++
	}
	if inserted == 0 {
		return 0, nil
	}
	if err := tx.Commit(); err != nil {
		return 0, connectionError("commit batch tx", err)
	}
	return inserted, nil
}

// build turns a definition into a storable task, applying validation and
// normalization. A nil task with nil error means the definition was skipped.
func (m *Manager) build(def Definition, now time.Time) (*Task, error) {
	ref := strings.TrimSpace(def.Handler)
	if ref == "" {
		return nil, nil
	}
	if _, ignored := m.ignore[ref]; ignored {
		return nil, nil
	}
	if _, err := handler.ParseRef(ref); err != nil {
		return nil, configurationError(fmt.Sprintf("invalid handler reference %q: %v", ref, err))
	}

	priority := def.Priority
	if priority < PriorityHighest {
		priority = PriorityHighest
	}
	if priority > PriorityLowest {
		priority = PriorityLowest
	}

	var forever *int
	if def.Forever != 0 {
		if def.Forever < MinForeverMinutes {
			return nil, configurationError(fmt.Sprintf("forever interval must be at least %d minutes, got %d", MinForeverMinutes, def.Forever))
		}
		minutes := def.Forever
		forever = &minutes
	}

	if def.Retries < 0 {
		return nil, configurationError(fmt.Sprintf("retries must not be negative, got %d", def.Retries))
	}

	scheduledAt, err := ParseSchedule(def.Schedule, now)
	if err != nil {
		return nil, err
	}

	argsJSON := ""
	if len(def.Args) > 0 {
		data, err := json.Marshal(def.Args)
		if err != nil {
			return nil, configurationError(fmt.Sprintf("arguments are not JSON-serializable: %v", err))
		}
		argsJSON = string(data)
	}

	return &Task{
		Priority:      priority,
		Retries:       def.Retries,
		AutoDelete:    def.AutoDelete,
		Forever:       forever,
		Status:        StatusPending,
		Group:         m.group,
		Handler:       ref,
		ArgumentsJSON: argsJSON,
		Signature:     Signature(ref, argsJSON),
		ScheduledAt:   scheduledAt,
	}, nil
}
