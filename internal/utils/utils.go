package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatFileSize converts bytes to human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// integers at or above this are millisecond timestamps, below it they count hours
const msThreshold = 100_000_000_000

// relative offsets are capped at roughly 100 years
const maxRelativeHours = 100 * 366 * 24

// ParseTimestamp accepts ISO 8601 timestamps (a trailing Z or an offset; none means UTC),
// plain dates, millisecond epochs, or a number of hours relative to now.
func ParseTimestamp(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date/time")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= msThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		if n > maxRelativeHours || n < -maxRelativeHours {
			return time.Time{}, fmt.Errorf("relative offset of %d hours is out of range", n)
		}
		return now.Add(time.Duration(n) * time.Hour), nil
	}

	formats := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date/time format %q, use ISO format", s)
}

// ParseBool treats 1, true, yes and on (any case) as true and everything else as false
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
