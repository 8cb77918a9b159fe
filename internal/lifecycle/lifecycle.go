package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// State is the temporal state of a file, derived from its availability window
type State string

const (
	Pending State = "pending"
	Active  State = "active"
	Expired State = "expired"
)

// Evaluate derives the lifecycle state of a window at now.
// A zero bound is treated as unset. When both bounds are set and from > to,
// pending wins over expired.
func Evaluate(availableFrom, availableTo, now time.Time) State {
	if !availableFrom.IsZero() && now.Before(availableFrom) {
		return Pending
	}
	if !availableTo.IsZero() && now.After(availableTo) {
		return Expired
	}
	return Active
}

// HoursUntil returns the fractional hours from now until t, floored at 0
func HoursUntil(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	hours := t.Sub(now).Hours()
	if hours < 0 {
		return 0
	}
	return hours
}

// ParseState parses a list filter value. "all" and "" yield an empty State,
// which means no filtering.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return "", nil
	case string(Pending):
		return Pending, nil
	case string(Active):
		return Active, nil
	case string(Expired):
		return Expired, nil
	default:
		return "", fmt.Errorf("unknown lifecycle state %q", s)
	}
}
