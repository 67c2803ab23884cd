package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a queued task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusPaused,
	StatusFailed,
	StatusCompleted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Priority bounds. Lower values run first.
const (
	PriorityHighest = 0
	PriorityLowest  = 100
)

// MinForeverMinutes is the minimum recurrence interval for forever tasks.
const MinForeverMinutes = 5

// Task represents one queued unit of work persisted in SQLite.
type Task struct {
	ID            int64
	Priority      int
	Attempts      int
	Retries       int
	AutoDelete    bool
	Forever       *int // recurrence interval in minutes, nil for one-shot tasks
	Status        Status
	Group         string
	Handler       string
	ArgumentsJSON string
	Signature     string
	Outputs       string
	ScheduledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

// IsRecurring reports whether the task re-arms on an interval instead of
// finishing after one successful run.
func (t *Task) IsRecurring() bool {
	return t != nil && t.Forever != nil
}

// Arguments decodes the stored argument list.
func (t *Task) Arguments() ([]any, error) {
	if t == nil || strings.TrimSpace(t.ArgumentsJSON) == "" {
		return nil, nil
	}
	var args []any
	if err := json.Unmarshal([]byte(t.ArgumentsJSON), &args); err != nil {
		return nil, fmt.Errorf("decode task arguments: %w", err)
	}
	return args, nil
}

// Outputs captures what a handler produced: the returned value and anything it
// wrote to its terminal handle.
type Outputs struct {
	Response any    `json:"response"`
	Output   string `json:"output"`
}

// EncodeOutputs serializes execution results for the outputs column.
func EncodeOutputs(response any, output string) string {
	data, err := json.Marshal(Outputs{Response: response, Output: output})
	if err != nil {
		// Response values come from handlers and may not be serializable;
		// fall back to the captured output alone.
		data, _ = json.Marshal(Outputs{Response: fmt.Sprint(response), Output: output})
	}
	return string(data)
}

// DecodeOutputs parses a stored outputs blob.
func DecodeOutputs(value string) (Outputs, error) {
	var out Outputs
	if strings.TrimSpace(value) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return out, fmt.Errorf("decode task outputs: %w", err)
	}
	return out, nil
}
