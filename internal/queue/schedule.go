package queue

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
)

var relativeExpr = regexp.MustCompile(`^\+?\s*(\d+)\s*(second|minute|hour|day|week)s?$`)

var scheduleLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSchedule normalizes an enqueue-time schedule into an absolute UTC
// activation time. Accepted forms:
//
//   - nil or empty string: run immediately (nil result)
//   - time.Time: used as-is
//   - integer or numeric string: Unix timestamp
//   - absolute timestamp string (RFC3339 or "2006-01-02 15:04:05")
//   - relative expression ("+10 minutes", "1 hour") or Go duration ("90s")
//   - cron expression ("*/10 * * * *", "@daily", "@every 10m"): next activation
func ParseSchedule(value any, now time.Time) (*time.Time, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		utc := v.UTC()
		return &utc, nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return ParseSchedule(*v, now)
	case time.Duration:
		at := now.Add(v).UTC()
		return &at, nil
	case string:
		return parseScheduleString(v, now)
	default:
		if ts, err := cast.ToInt64E(value); err == nil {
			at := time.Unix(ts, 0).UTC()
			return &at, nil
		}
		return nil, configurationError(fmt.Sprintf("unsupported schedule value %v", value))
	}
}

func parseScheduleString(value string, now time.Time) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := cast.ToInt64E(trimmed); err == nil {
		at := time.Unix(ts, 0).UTC()
		return &at, nil
	}

	for _, layout := range scheduleLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			at := parsed.UTC()
			return &at, nil
		}
	}

	if match := relativeExpr.FindStringSubmatch(strings.ToLower(trimmed)); match != nil {
		amount := cast.ToInt64(match[1])
		unit := map[string]time.Duration{
			"second": time.Second,
			"minute": time.Minute,
			"hour":   time.Hour,
			"day":    24 * time.Hour,
			"week":   7 * 24 * time.Hour,
		}[match[2]]
		at := now.Add(time.Duration(amount) * unit).UTC()
		return &at, nil
	}

	if dur, err := time.ParseDuration(strings.TrimPrefix(trimmed, "+")); err == nil {
		at := now.Add(dur).UTC()
		return &at, nil
	}

	if schedule, err := cron.ParseStandard(trimmed); err == nil {
		at := schedule.Next(now).UTC()
		return &at, nil
	}

	return nil, configurationError(fmt.Sprintf("unrecognized schedule %q", value))
}
