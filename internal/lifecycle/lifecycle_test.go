package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 16, 12, 0, 0, 0, time.UTC)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want State
	}{
		{"strictly inside window", now.Add(-time.Hour), now.Add(time.Hour), Active},
		{"before window", now.Add(time.Hour), now.Add(2 * time.Hour), Pending},
		{"after window", now.Add(-2 * time.Hour), now.Add(-time.Hour), Expired},
		{"at start of window", now, now.Add(time.Hour), Active},
		{"at end of window", now.Add(-time.Hour), now, Active},
		{"no bounds", time.Time{}, time.Time{}, Active},
		{"only upper bound passed", time.Time{}, now.Add(-time.Minute), Expired},
		{"only lower bound ahead", now.Add(time.Minute), time.Time{}, Pending},
		{"inverted window prefers pending", now.Add(time.Hour), now.Add(-time.Hour), Pending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.from, tt.to, now))
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	from := now.Add(-30 * time.Minute)
	to := now.Add(30 * time.Minute)

	first := Evaluate(from, to, now)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Evaluate(from, to, now))
	}
}

func TestHoursUntil(t *testing.T) {
	assert.InDelta(t, 1.0, HoursUntil(now.Add(time.Hour), now), 1e-9)
	assert.InDelta(t, 0.5, HoursUntil(now.Add(30*time.Minute), now), 1e-9)
	assert.Equal(t, 0.0, HoursUntil(now.Add(-time.Hour), now))
	assert.Equal(t, 0.0, HoursUntil(time.Time{}, now))
}

func TestParseState(t *testing.T) {
	for in, want := range map[string]State{
		"":        "",
		"all":     "",
		"ALL":     "",
		"pending": Pending,
		"Active":  Active,
		"expired": Expired,
	} {
		got, err := ParseState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseState("deleted")
	assert.Error(t, err)
}
