package command

import (
	"context"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

// AddStudyTimeCommand adds minutes to the user's total study time.
// Minutes may be nil; nil, zero and negative values leave the record unchanged.
type AddStudyTimeCommand struct {
	UserID        int64
	Minutes       *int
	CorrelationID string
}

// HasTime reports whether the command carries a positive amount.
func (c AddStudyTimeCommand) HasTime() bool {
	return c.Minutes != nil && *c.Minutes > 0
}

// AddStudyTime accrues study minutes.
func (t *ProgressTracker) AddStudyTime(ctx context.Context, cmd AddStudyTimeCommand) (*progress.Record, error) {
	if cmd.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if !cmd.HasTime() {
		return t.GetOrCreate(ctx, cmd.UserID)
	}

	minutes := *cmd.Minutes
	return t.mutate(ctx, "add_study_time", cmd.UserID, func(rec *progress.Record) (bool, []shared.Event, error) {
		if _, err := rec.AddStudyTime(minutes); err != nil {
			return false, nil, err
		}

		e := shared.NewStudyTimeAddedEvent(rec.UserID, minutes, rec.TotalStudyTime, t.clock.Now())
		if cmd.CorrelationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		return true, []shared.Event{e}, nil
	})
}
