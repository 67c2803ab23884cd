package handler

import (
	"time"

	"github.com/spf13/cast"
)

// Args is the ordered argument list stored with a task. JSON round-tripping
// loses Go types (every number arrives as float64), so accessors coerce
// loosely instead of type-asserting.
type Args []any

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

func (a Args) at(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// String returns argument i as a string, or the fallback when absent.
func (a Args) String(i int, fallback string) string {
	if i >= len(a) {
		return fallback
	}
	return cast.ToString(a.at(i))
}

// Int returns argument i as an int, or the fallback when absent or
// non-numeric.
func (a Args) Int(i int, fallback int) int {
	if i >= len(a) {
		return fallback
	}
	value, err := cast.ToIntE(a.at(i))
	if err != nil {
		return fallback
	}
	return value
}

// Int64 returns argument i as an int64.
func (a Args) Int64(i int, fallback int64) int64 {
	if i >= len(a) {
		return fallback
	}
	value, err := cast.ToInt64E(a.at(i))
	if err != nil {
		return fallback
	}
	return value
}

// Float64 returns argument i as a float64.
func (a Args) Float64(i int, fallback float64) float64 {
	if i >= len(a) {
		return fallback
	}
	value, err := cast.ToFloat64E(a.at(i))
	if err != nil {
		return fallback
	}
	return value
}

// Bool returns argument i as a bool.
func (a Args) Bool(i int, fallback bool) bool {
	if i >= len(a) {
		return fallback
	}
	value, err := cast.ToBoolE(a.at(i))
	if err != nil {
		return fallback
	}
	return value
}

// Duration returns argument i as a time.Duration, accepting either a numeric
// nanosecond count or a Go duration string.
func (a Args) Duration(i int, fallback time.Duration) time.Duration {
	if i >= len(a) {
		return fallback
	}
	value, err := cast.ToDurationE(a.at(i))
	if err != nil {
		return fallback
	}
	return value
}
