package command

import (
	"context"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPLACE PROGRESS COMMAND
// Administrative bulk overwrite of the three counters. The completed-lesson
// set and the last studied date are left as they are, so the lesson count
// may stop matching the set size. Unlocked achievements are unaffected.
// ══════════════════════════════════════════════════════════════════════════════

// ReplaceProgressCommand carries the counters to write.
type ReplaceProgressCommand struct {
	UserID        int64
	Values        progress.Snapshot
	CorrelationID string
}

// Validate validates the command.
func (c ReplaceProgressCommand) Validate() error {
	if c.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	return c.Values.Validate()
}

// ReplaceProgress overwrites lessonsCompleted, studyStreak and totalStudyTime.
func (t *ProgressTracker) ReplaceProgress(ctx context.Context, cmd ReplaceProgressCommand) (*progress.Record, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	return t.mutate(ctx, "replace_progress", cmd.UserID, func(rec *progress.Record) (bool, []shared.Event, error) {
		if err := rec.Replace(cmd.Values); err != nil {
			return false, nil, err
		}
		if !rec.Consistent() {
			t.log.Warn("lesson count diverges from completed lessons",
				logger.UserID(rec.UserID),
				logger.Int("lessons_completed", rec.LessonsCompleted),
				logger.Int("completed_lessons", len(rec.CompletedLessons)),
			)
		}

		e := shared.NewProgressReplacedEvent(rec.UserID, rec.LessonsCompleted, rec.StudyStreak, rec.TotalStudyTime, t.clock.Now())
		if cmd.CorrelationID != "" {
			e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		return true, []shared.Event{e}, nil
	})
}
