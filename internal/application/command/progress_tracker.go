// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/logger"
	"github.com/alem-hub/learning-progress/pkg/retry"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS TRACKER
// Owns every mutation of a user's progress record. Each mutation is a
// read-modify-write under the per-user lock "progress:{id}".
// ══════════════════════════════════════════════════════════════════════════════

// ProgressTrackerConfig contains configuration for the tracker.
type ProgressTrackerConfig struct {
	// StoreTimeout bounds every single store round trip.
	StoreTimeout time.Duration

	// LockTimeout bounds waiting for the per-user lock.
	LockTimeout time.Duration
}

// DefaultProgressTrackerConfig returns default configuration.
func DefaultProgressTrackerConfig() ProgressTrackerConfig {
	return ProgressTrackerConfig{
		StoreTimeout: 3 * time.Second,
		LockTimeout:  5 * time.Second,
	}
}

// ProgressTrackerDeps groups the collaborators of the tracker.
type ProgressTrackerDeps struct {
	Users     progress.UserLookup
	Store     progress.Store
	Locker    progress.Locker
	Clock     timeutil.Clock
	Publisher shared.EventPublisher
	Logger    *logger.Logger
}

// ProgressTracker handles progress commands.
type ProgressTracker struct {
	users     progress.UserLookup
	store     progress.Store
	locker    progress.Locker
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
	config    ProgressTrackerConfig
	conflicts *retry.Retrier
}

// NewProgressTracker creates a new ProgressTracker.
func NewProgressTracker(deps ProgressTrackerDeps, config ProgressTrackerConfig) *ProgressTracker {
	defaults := DefaultProgressTrackerConfig()
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = defaults.StoreTimeout
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaults.LockTimeout
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.NewSystemClock(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	return &ProgressTracker{
		users:     deps.Users,
		store:     deps.Store,
		locker:    deps.Locker,
		clock:     deps.Clock,
		publisher: deps.Publisher,
		log:       deps.Logger.With(logger.Component("progress_tracker")),
		config:    config,
		conflicts: retry.TransactionRetrier(isConflict),
	}
}

// GetOrCreate returns the user's record, creating a zero-valued one if absent.
func (t *ProgressTracker) GetOrCreate(ctx context.Context, userID int64) (*progress.Record, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	rec, found, err := t.load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: %w", err)
	}
	if found {
		return rec, nil
	}

	// Slow path: create under the lock so concurrent first accesses agree.
	return t.mutate(ctx, "get_progress", userID, func(*progress.Record) (bool, []shared.Event, error) {
		return false, nil, nil
	})
}

// mutation changes rec in place and reports whether it must be persisted.
type mutation func(rec *progress.Record) (changed bool, events []shared.Event, err error)

// mutate runs fn against the current record under the user's lock and saves
// the result. Nothing is persisted when fn fails, and a failed save leaves
// the previously stored record authoritative. When the store reports that
// another writer saved first, the record is reloaded and fn is applied again.
func (t *ProgressTracker) mutate(ctx context.Context, op string, userID int64, fn mutation) (*progress.Record, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	lockCtx, cancel := context.WithTimeout(ctx, t.config.LockTimeout)
	unlock, err := t.locker.Lock(lockCtx, progress.LockKey(userID))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	var events []shared.Event
	saved, err := retry.DoWithData(ctx, t.conflicts, func(ctx context.Context) (*progress.Record, error) {
		rec, evs, err := t.apply(ctx, op, userID, fn)
		events = evs
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t.publish(events)
	return saved, nil
}

// apply is one load, mutate and save attempt.
func (t *ProgressTracker) apply(ctx context.Context, op string, userID int64, fn mutation) (*progress.Record, []shared.Event, error) {
	current, found, err := t.load(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	isNew := !found
	if isNew {
		exists, err := t.userExists(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			return nil, nil, shared.ErrUserNotFound
		}
		current, err = progress.NewRecord(userID)
		if err != nil {
			return nil, nil, err
		}
	}

	next := current.Clone()
	changed, events, err := fn(next)
	if err != nil {
		return nil, nil, err
	}

	if !changed && !isNew {
		return current, nil, nil
	}

	saved, err := t.save(ctx, next)
	if err != nil {
		if isConflict(err) {
			t.log.Debug("progress changed concurrently, reloading", logger.Operation(op), logger.UserID(userID))
		} else {
			t.log.Error("failed to save progress", logger.Operation(op), logger.UserID(userID), logger.Err(err))
		}
		return nil, nil, err
	}

	t.log.Debug("progress saved",
		logger.Operation(op),
		logger.UserID(userID),
		logger.Int("lessons_completed", saved.LessonsCompleted),
		logger.Streak(saved.StudyStreak),
		logger.Int("total_study_time", saved.TotalStudyTime),
		logger.Int64("version", saved.Version),
	)
	return saved, events, nil
}

func isConflict(err error) bool {
	return errors.Is(err, shared.ErrConcurrentModification)
}

func (t *ProgressTracker) load(ctx context.Context, userID int64) (*progress.Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.StoreTimeout)
	defer cancel()

	rec, found, err := t.store.Load(ctx, userID)
	if err != nil {
		return nil, false, shared.StoreError("progress", "Load", err)
	}
	return rec, found, nil
}

func (t *ProgressTracker) save(ctx context.Context, rec *progress.Record) (*progress.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.StoreTimeout)
	defer cancel()

	saved, err := t.store.Save(ctx, rec)
	if err != nil {
		return nil, shared.StoreError("progress", "Save", err)
	}
	return saved, nil
}

func (t *ProgressTracker) userExists(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.StoreTimeout)
	defer cancel()

	exists, err := t.users.Exists(ctx, userID)
	if err != nil {
		return false, shared.StoreError("user", "Exists", err)
	}
	return exists, nil
}

func (t *ProgressTracker) publish(events []shared.Event) {
	for _, event := range events {
		if err := t.publisher.Publish(event); err != nil {
			t.log.Warn("failed to publish event",
				logger.String("event_type", string(event.EventType())), logger.Err(err))
		}
	}
}

// today returns the calendar day of now in the clock's location.
func (t *ProgressTracker) today(now time.Time) timeutil.Date {
	return timeutil.DateIn(now, t.clock.Location())
}

// streakEvent builds the event for a streak calculation.
func streakEvent(userID int64, previous int, res progress.StreakResult, at time.Time, correlationID string) shared.Event {
	e := shared.NewStreakUpdatedEvent(userID, previous, res.Streak, string(res.Outcome), res.LastStudied.String(), at)
	if correlationID != "" {
		e.BaseEvent = e.BaseEvent.WithCorrelationID(correlationID)
	}
	return e
}
