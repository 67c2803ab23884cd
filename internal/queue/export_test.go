package queue

import (
	"context"
	"testing"
	"time"
)

// BackdateUpdated rewinds a task's updated_at so recurrence and staleness
// windows can be exercised without sleeping through them.
func BackdateUpdated(t testing.TB, store *Store, group string, id int64, by time.Duration) {
	t.Helper()

	stamp := time.Now().UTC().Add(-by).Format(time.RFC3339Nano)
	res, err := store.db.ExecContext(context.Background(),
		"UPDATE tasks SET updated_at = ? WHERE group_name = ? AND id = ?",
		stamp, group, id)
	if err != nil {
		t.Fatalf("backdate task %d: %v", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		t.Fatalf("backdate rows affected: %v", err)
	}
	if affected != 1 {
		t.Fatalf("backdate matched %d rows, want 1", affected)
	}
}

// SetScheduledStamp writes a raw scheduled_at value, bypassing the manager's
// schedule parsing, so stamp-format edge cases can be staged directly.
func SetScheduledStamp(t testing.TB, store *Store, group string, id int64, stamp string) {
	t.Helper()

	if _, err := store.db.ExecContext(context.Background(),
		"UPDATE tasks SET scheduled_at = ? WHERE group_name = ? AND id = ?",
		stamp, group, id); err != nil {
		t.Fatalf("set schedule stamp %d: %v", id, err)
	}
}

// BackdateScheduled rewinds scheduled_at the same way.
func BackdateScheduled(t testing.TB, store *Store, group string, id int64, by time.Duration) {
	t.Helper()

	stamp := time.Now().UTC().Add(-by).Format(time.RFC3339Nano)
	if _, err := store.db.ExecContext(context.Background(),
		"UPDATE tasks SET scheduled_at = ? WHERE group_name = ? AND id = ?",
		stamp, group, id); err != nil {
		t.Fatalf("backdate schedule %d: %v", id, err)
	}
}
