package queue_test

import (
	"testing"
	"time"

	"taskmill/internal/queue"
)

func TestParseSchedule(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name  string
		value any
		want  *time.Time
	}{
		{"nil", nil, nil},
		{"empty string", "   ", nil},
		{"zero time", time.Time{}, nil},
		{"absolute time", now.Add(time.Hour), timePtr(now.Add(time.Hour))},
		{"duration value", 90 * time.Minute, timePtr(now.Add(90 * time.Minute))},
		{"unix timestamp", int64(1773308400), timePtr(time.Unix(1773308400, 0).UTC())},
		{"unix string", "1773308400", timePtr(time.Unix(1773308400, 0).UTC())},
		{"rfc3339", "2026-03-14T12:00:00Z", timePtr(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))},
		{"date time", "2026-03-14 12:00:00", timePtr(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))},
		{"relative minutes", "+10 minutes", timePtr(now.Add(10 * time.Minute))},
		{"relative singular", "1 hour", timePtr(now.Add(time.Hour))},
		{"relative weeks", "2 weeks", timePtr(now.Add(14 * 24 * time.Hour))},
		{"go duration", "90s", timePtr(now.Add(90 * time.Second))},
		{"cron expression", "0 12 * * *", timePtr(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))},
		{"cron descriptor", "@daily", timePtr(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := queue.ParseSchedule(tc.value, now)
			if err != nil {
				t.Fatalf("ParseSchedule(%v) failed: %v", tc.value, err)
			}
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("ParseSchedule(%v) = %v, want nil", tc.value, got)
			case tc.want != nil && got == nil:
				t.Fatalf("ParseSchedule(%v) = nil, want %v", tc.value, tc.want)
			case tc.want != nil && !got.Equal(*tc.want):
				t.Fatalf("ParseSchedule(%v) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}

func TestParseScheduleRejectsGarbage(t *testing.T) {
	now := time.Now().UTC()
	for _, value := range []any{"tomorrow-ish", struct{}{}, "++5 minutes"} {
		if _, err := queue.ParseSchedule(value, now); err == nil {
			t.Fatalf("ParseSchedule(%v) accepted garbage", value)
		} else if !queue.IsConfiguration(err) {
			t.Fatalf("ParseSchedule(%v) error is not a configuration error: %v", value, err)
		}
	}
}

func timePtr(v time.Time) *time.Time {
	return &v
}
