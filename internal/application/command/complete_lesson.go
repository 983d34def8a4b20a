package command

import (
	"context"
	"strings"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE LESSON COMMAND
// Adds a lesson to the completed set and refreshes the streak. Re-submitting
// a lesson does not double-count it but still moves the streak and date.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLessonCommand contains the data to complete a lesson.
type CompleteLessonCommand struct {
	UserID        int64
	LessonID      string
	CorrelationID string
}

// Validate validates the command.
func (c CompleteLessonCommand) Validate() error {
	if c.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if strings.TrimSpace(c.LessonID) == "" {
		return shared.ErrEmptyLessonID
	}
	return nil
}

// CompleteLesson records a completed lesson for the user.
func (t *ProgressTracker) CompleteLesson(ctx context.Context, cmd CompleteLessonCommand) (*progress.Record, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	return t.mutate(ctx, "complete_lesson", cmd.UserID, func(rec *progress.Record) (bool, []shared.Event, error) {
		now := t.clock.Now()

		added, err := rec.CompleteLesson(cmd.LessonID)
		if err != nil {
			return false, nil, err
		}

		previous := rec.StudyStreak
		res := rec.RecordStudyDay(t.today(now))

		lessonEvent := shared.NewLessonCompletedEvent(rec.UserID, strings.TrimSpace(cmd.LessonID), added,
			rec.LessonsCompleted, rec.StudyStreak, now)
		if cmd.CorrelationID != "" {
			lessonEvent.BaseEvent = lessonEvent.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}

		return true, []shared.Event{
			lessonEvent,
			streakEvent(rec.UserID, previous, res, now, cmd.CorrelationID),
		}, nil
	})
}
