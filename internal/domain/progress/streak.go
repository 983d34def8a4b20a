package progress

import "github.com/alem-hub/learning-progress/pkg/timeutil"

// ══════════════════════════════════════════════════════════════════════════════
// STREAK CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// StreakOutcome описывает, какая ветка расчёта сработала.
type StreakOutcome string

const (
	// StreakStarted - первое занятие, дата ещё не была записана.
	StreakStarted StreakOutcome = "started"

	// StreakKept - повторное занятие в тот же календарный день.
	StreakKept StreakOutcome = "kept"

	// StreakExtended - занятие на следующий день после предыдущего.
	StreakExtended StreakOutcome = "extended"

	// StreakReset - пропуск двух и более дней или дата раньше предыдущей.
	StreakReset StreakOutcome = "reset"
)

// StreakResult - результат расчёта серии.
type StreakResult struct {
	Streak      int
	LastStudied timeutil.Date
	Outcome     StreakOutcome
}

// NextStreak вычисляет новую серию и дату последнего занятия.
//
// Правила:
//   - last == nil: серия становится 1
//   - тот же день: серия не меняется
//   - last + 1 день == today: серия +1
//   - иначе: серия сбрасывается в 0
//
// LastStudied всегда равна today, в том числе в ветке "тот же день".
func NextStreak(previous int, last *timeutil.Date, today timeutil.Date) StreakResult {
	if previous < 0 {
		previous = 0
	}

	res := StreakResult{LastStudied: today}

	switch {
	case last == nil:
		res.Streak = 1
		res.Outcome = StreakStarted
	case last.Equal(today):
		res.Streak = previous
		res.Outcome = StreakKept
	case last.AddDays(1).Equal(today):
		res.Streak = previous + 1
		res.Outcome = StreakExtended
	default:
		res.Streak = 0
		res.Outcome = StreakReset
	}

	return res
}
