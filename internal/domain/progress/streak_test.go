package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

func datePtr(d timeutil.Date) *timeutil.Date { return &d }

func TestNextStreak(t *testing.T) {
	d := timeutil.NewDate(2024, time.March, 10)

	tests := []struct {
		name     string
		previous int
		last     *timeutil.Date
		today    timeutil.Date
		want     int
		outcome  StreakOutcome
	}{
		{"first ever", 0, nil, d, 1, StreakStarted},
		{"first ever ignores stale counter", 7, nil, d, 1, StreakStarted},
		{"same day", 4, datePtr(d), d, 4, StreakKept},
		{"same day with zero streak", 0, datePtr(d), d, 0, StreakKept},
		{"consecutive day", 4, datePtr(d), d.AddDays(1), 5, StreakExtended},
		{"consecutive after reset", 0, datePtr(d), d.AddDays(1), 1, StreakExtended},
		{"two day gap", 4, datePtr(d), d.AddDays(2), 0, StreakReset},
		{"three day gap", 9, datePtr(d), d.AddDays(3), 0, StreakReset},
		{"today earlier than last", 3, datePtr(d), d.AddDays(-1), 0, StreakReset},
		{"same day of year different year", 3, datePtr(d), d.AddDays(365), 0, StreakReset},
		{"across year end", 2, datePtr(timeutil.NewDate(2023, time.December, 31)), timeutil.NewDate(2024, time.January, 1), 3, StreakExtended},
		{"across leap day", 2, datePtr(timeutil.NewDate(2024, time.February, 28)), timeutil.NewDate(2024, time.February, 29), 3, StreakExtended},
		{"skipping leap day", 2, datePtr(timeutil.NewDate(2024, time.February, 28)), timeutil.NewDate(2024, time.March, 1), 0, StreakReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NextStreak(tt.previous, tt.last, tt.today)
			assert.Equal(t, tt.want, res.Streak)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.today, res.LastStudied, "last studied date is always today")
		})
	}
}

func TestNextStreak_SameDayIsIdempotent(t *testing.T) {
	d := timeutil.NewDate(2024, time.May, 1)

	first := NextStreak(2, datePtr(d.AddDays(-1)), d)
	second := NextStreak(first.Streak, &first.LastStudied, d)
	third := NextStreak(second.Streak, &second.LastStudied, d)

	assert.Equal(t, 3, first.Streak)
	assert.Equal(t, first.Streak, second.Streak)
	assert.Equal(t, first.Streak, third.Streak)
}

func TestNextStreak_NeverNegative(t *testing.T) {
	d := timeutil.NewDate(2024, time.May, 1)

	res := NextStreak(-5, datePtr(d), d)
	assert.Equal(t, 0, res.Streak)
}
