package queue

import (
	"fmt"
	"strings"
)

// Filter selects task rows for list, count, purge, and status-transition
// operations. Beyond explicit statuses there are four derived filters.
type Filter string

const (
	// FilterAll matches every task in the group.
	FilterAll Filter = "all"
	// FilterForever matches tasks with a recurrence interval.
	FilterForever Filter = "forever"
	// FilterExecutable matches tasks currently eligible for worker pickup.
	FilterExecutable Filter = "executable"
	// FilterPauseable matches tasks that may transition to paused.
	FilterPauseable Filter = "pauseable"
)

// StatusFilter builds a filter matching exactly one status.
func StatusFilter(status Status) Filter {
	return Filter(status)
}

// ParseFilter converts a string into a known Filter. Explicit status names are
// accepted alongside the derived filters.
func ParseFilter(value string) (Filter, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch Filter(normalized) {
	case FilterAll, FilterForever, FilterExecutable, FilterPauseable:
		return Filter(normalized), nil
	}
	if status, ok := ParseStatus(normalized); ok {
		return StatusFilter(status), nil
	}
	return "", configurationError(fmt.Sprintf("unknown status filter %q", value))
}

// clause renders the filter as a SQL predicate over the tasks table. The
// returned fragment never includes the group scope; callers add that.
// nowParam placeholders receive the caller's notion of now (RFC3339 UTC).
func (f Filter) clause(now string) (string, []any) {
	switch f {
	case FilterAll, "":
		return "1=1", nil
	case FilterForever:
		return "forever IS NOT NULL", nil
	case FilterPauseable:
		return "status IN (?, ?)", []any{StatusPending, StatusFailed}
	case FilterExecutable:
		// A task is executable when it is pending (or stranded in running by
		// a dead worker), when its recurrence interval has elapsed since the
		// last update, or when its retry budget still covers another attempt;
		// in all cases any schedule must have come due.
		clause := `(
    status IN (?, ?)
    OR (forever IS NOT NULL AND status IN (?, ?, ?)
        AND (updated_at IS NULL OR datetime(updated_at) <= datetime(?, '-' || forever || ' minutes')))
    OR (status = ? AND retries > 0 AND retries >= attempts)
) AND (scheduled_at IS NULL OR datetime(scheduled_at) <= datetime(?))`
		return clause, []any{
			StatusPending, StatusRunning,
			StatusPending, StatusFailed, StatusCompleted,
			now,
			StatusFailed,
			now,
		}
	default:
		return "status = ?", []any{Status(f)}
	}
}
