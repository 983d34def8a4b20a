package command

import (
	"context"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

// UpdateStreakCommand applies the streak calculator with "now" as today.
type UpdateStreakCommand struct {
	UserID        int64
	CorrelationID string
}

// UpdateStreak recalculates the study streak. The date is always written,
// even when the streak stays the same.
func (t *ProgressTracker) UpdateStreak(ctx context.Context, cmd UpdateStreakCommand) (*progress.Record, error) {
	if cmd.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	return t.mutate(ctx, "update_streak", cmd.UserID, func(rec *progress.Record) (bool, []shared.Event, error) {
		now := t.clock.Now()
		previous := rec.StudyStreak
		res := rec.RecordStudyDay(t.today(now))
		return true, []shared.Event{streakEvent(rec.UserID, previous, res, now, cmd.CorrelationID)}, nil
	})
}
