package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages task persistence backed by SQLite. One Store is shared by the
// enqueue API, the worker loop, and the CLI within a process; cross-process
// coordination happens through SQLite itself plus the group lock.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the task database and ensures the schema.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, configurationError("task database path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, connectionError("open sqlite db", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, connectionError(fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.path
}

// Init creates the tasks table. Safe to call on an initialized database.
func (s *Store) Init(ctx context.Context) error {
	ctx = ensureContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return connectionError("begin schema tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d (run 'taskmill deinit' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}

	return tx.Commit()
}

// Deinit drops the tasks table. Safe to call when the table is absent.
func (s *Store) Deinit(ctx context.Context) error {
	ctx = ensureContext(ctx)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS tasks",
		"DROP TABLE IF EXISTS schema_version",
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	return nil
}

// InsertOrReset inserts a task, or wakes up the existing row carrying the same
// (group, signature): the row returns to pending with outputs and attempts
// cleared instead of a duplicate being created.
func (s *Store) InsertOrReset(ctx context.Context, task *Task) (int64, error) {
	if task == nil {
		return 0, errors.New("task is nil")
	}
	return s.insertOrReset(ctx, s.db, task)
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertOrResetSQL = `INSERT INTO tasks (
        priority, attempts, retries, auto_delete, forever, status,
        group_name, handler, arguments, signature, outputs,
        scheduled_at, created_at, updated_at
    ) VALUES (?, 0, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
    ON CONFLICT (group_name, signature) DO UPDATE SET
        status = excluded.status,
        outputs = NULL,
        attempts = 0,
        priority = excluded.priority,
        retries = excluded.retries,
        auto_delete = excluded.auto_delete,
        forever = excluded.forever,
        scheduled_at = excluded.scheduled_at,
        updated_at = excluded.updated_at
    RETURNING id`

func (s *Store) insertOrReset(ctx context.Context, db execer, task *Task) (int64, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	var id int64
	err := retryOnBusy(ctx, func() error {
		row := db.QueryRowContext(
			ctx,
			insertOrResetSQL,
			task.Priority,
			task.Retries,
			boolToInt(task.AutoDelete),
			nullableInt(task.Forever),
			StatusPending,
			task.Group,
			task.Handler,
			nullableString(task.ArgumentsJSON),
			task.Signature,
			nullableTime(task.ScheduledAt),
			timestamp,
			timestamp,
		)
		return row.Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	task.ID = id
	task.Status = StatusPending
	task.Attempts = 0
	task.Outputs = ""
	task.CreatedAt = now
	return id, nil
}

// Get fetches a task by identifier within a group. Returns nil when absent.
func (s *Store) Get(ctx context.Context, group string, id int64) (*Task, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE group_name = ? AND id = ?`,
		group, id,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns tasks matching a filter, ordered by (priority, scheduled_at,
// id): lower priority number first, then earliest schedule, then insertion
// order. A limit of 0 means no limit.
func (s *Store) List(ctx context.Context, group string, filter Filter, limit, offset int) ([]*Task, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	clause, args := filter.clause(now)

	// datetime() normalizes the stored RFC3339 strings so sub-second stamps
	// with trimmed trailing zeros do not sort lexicographically.
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE group_name = ? AND (` + clause + `)` +
		` ORDER BY priority ASC, datetime(scheduled_at) ASC, id ASC`
	queryArgs := append([]any{group}, args...)
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		queryArgs = append(queryArgs, limit, offset)
	} else if offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		queryArgs = append(queryArgs, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, connectionError("list tasks", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Page bundles a window of tasks with the total count for the filter.
type Page struct {
	Tasks []*Task
	Total int
}

// ListPage combines List and Count for paginated callers. Total is only
// populated when withTotal is set.
func (s *Store) ListPage(ctx context.Context, group string, filter Filter, limit, offset int, withTotal bool) (*Page, error) {
	tasks, err := s.List(ctx, group, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	page := &Page{Tasks: tasks}
	if withTotal {
		total, err := s.Count(ctx, group, filter)
		if err != nil {
			return nil, err
		}
		page.Total = total
	}
	return page, nil
}

// Count returns the number of tasks matching a filter.
func (s *Store) Count(ctx context.Context, group string, filter Filter) (int, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	clause, args := filter.clause(now)

	var count int
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM tasks WHERE group_name = ? AND (`+clause+`)`,
		append([]any{group}, args...)...,
	)
	if err := row.Scan(&count); err != nil {
		return 0, connectionError("count tasks", err)
	}
	return count, nil
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context, group string) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks WHERE group_name = ? GROUP BY status`, group)
	if err != nil {
		return nil, connectionError("task stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Delete removes a task by identifier.
func (s *Store) Delete(ctx context.Context, group string, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE group_name = ? AND id = ?`, group, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Purge removes all tasks matching a filter.
func (s *Store) Purge(ctx context.Context, group string, filter Filter) (int64, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	clause, args := filter.clause(now)

	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tasks WHERE group_name = ? AND (`+clause+`)`,
		append([]any{group}, args...)...,
	)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	return res.RowsAffected()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const taskColumns = "id, priority, attempts, retries, auto_delete, forever, status, group_name, handler, arguments, signature, outputs, scheduled_at, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id           int64
		priority     int
		attempts     int
		retries      int
		autoDelete   sql.NullInt64
		forever      sql.NullInt64
		statusStr    string
		group        string
		handlerRef   string
		arguments    sql.NullString
		signature    string
		outputs      sql.NullString
		scheduledRaw sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&priority,
		&attempts,
		&retries,
		&autoDelete,
		&forever,
		&statusStr,
		&group,
		&handlerRef,
		&arguments,
		&signature,
		&outputs,
		&scheduledRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:            id,
		Priority:      priority,
		Attempts:      attempts,
		Retries:       retries,
		AutoDelete:    autoDelete.Valid && autoDelete.Int64 != 0,
		Status:        Status(statusStr),
		Group:         group,
		Handler:       handlerRef,
		ArgumentsJSON: arguments.String,
		Signature:     signature,
		Outputs:       outputs.String,
	}
	if forever.Valid {
		minutes := int(forever.Int64)
		task.Forever = &minutes
	}
	if scheduledRaw.Valid {
		if at, err := parseTimeString(scheduledRaw.String); err == nil {
			task.ScheduledAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updatedRaw.Valid {
		if updated, err := parseTimeString(updatedRaw.String); err == nil {
			task.UpdatedAt = &updated
		}
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
