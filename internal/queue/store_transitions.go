package queue

import (
	"fmt"
	"time"

	"context"
)

// attemptsExpr returns the attempts bookkeeping for a transition target:
// completed and failed record an attempt, re-entering pending starts over.
func attemptsExpr(to Status) string {
	switch to {
	case StatusCompleted, StatusFailed:
		return "attempts + 1"
	case StatusPending:
		return "0"
	default:
		return "attempts"
	}
}

// UpdateStatus transitions a task to a new status. The from filter restricts
// the write to rows still in an expected prior state, so a stale worker cannot
// overwrite a transition another process already made. outputs replaces the
// stored outputs blob; nil clears it. Returns false when no row matched.
func (s *Store) UpdateStatus(ctx context.Context, group string, id int64, to Status, from Filter, outputs *string) (bool, error) {
	if _, ok := ParseStatus(string(to)); !ok {
		return false, configurationError(fmt.Sprintf("invalid status %q", to))
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	clause, clauseArgs := from.clause(now)

	query := `UPDATE tasks SET status = ?, attempts = ` + attemptsExpr(to) + `, outputs = ?, updated_at = ?
        WHERE group_name = ? AND id = ? AND (` + clause + `)`
	args := append([]any{to, nullableOutputs(outputs), now, group, id}, clauseArgs...)

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RevertRunning returns every running task in the group to pending with
// outputs cleared. Called on worker shutdown so an interrupted task can be
// picked up safely by the next worker instance.
func (s *Store) RevertRunning(ctx context.Context, group string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, outputs = NULL, attempts = 0, updated_at = ?
         WHERE group_name = ? AND status = ?`,
		StatusPending, now, group, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("revert running tasks: %w", err)
	}
	return res.RowsAffected()
}

// Retry resets a failed task to pending regardless of its remaining retry
// budget. Returns false when the task is not failed.
func (s *Store) Retry(ctx context.Context, group string, id int64) (bool, error) {
	return s.UpdateStatus(ctx, group, id, StatusPending, StatusFilter(StatusFailed), nil)
}

// Pause suspends a task. Only pending and failed tasks are pauseable; pausing
// a running or completed task is a no-op returning false.
func (s *Store) Pause(ctx context.Context, group string, id int64) (bool, error) {
	return s.UpdateStatus(ctx, group, id, StatusPaused, FilterPauseable, nil)
}

// Resume returns a paused task to pending.
func (s *Store) Resume(ctx context.Context, group string, id int64) (bool, error) {
	return s.UpdateStatus(ctx, group, id, StatusPending, StatusFilter(StatusPaused), nil)
}

func nullableOutputs(outputs *string) any {
	if outputs == nil || *outputs == "" {
		return nil
	}
	return *outputs
}
