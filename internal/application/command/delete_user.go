package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/pkg/logger"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// DeleteUserCommand removes a user with their progress and achievements.
type DeleteUserCommand struct {
	UserID        int64
	CorrelationID string
}

// ProgressEvictor drops cached copies of a user's progress.
type ProgressEvictor interface {
	Evict(ctx context.Context, userID int64) error
}

// DeleteUserDeps groups the collaborators of DeleteUserHandler.
type DeleteUserDeps struct {
	Users     user.Repository
	Locker    progress.Locker
	Evictor   ProgressEvictor
	Clock     timeutil.Clock
	Publisher shared.EventPublisher
	Logger    *logger.Logger

	// LockTimeout bounds waiting for each per-user lock.
	LockTimeout time.Duration
}

// DeleteUserHandler handles the DeleteUserCommand.
type DeleteUserHandler struct {
	users       user.Repository
	locker      progress.Locker
	evictor     ProgressEvictor
	clock       timeutil.Clock
	publisher   shared.EventPublisher
	log         *logger.Logger
	lockTimeout time.Duration
}

// NewDeleteUserHandler creates a new DeleteUserHandler. Evictor may be nil
// when no progress cache is configured.
func NewDeleteUserHandler(deps DeleteUserDeps) *DeleteUserHandler {
	if deps.Clock == nil {
		deps.Clock = timeutil.NewSystemClock(nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.LockTimeout <= 0 {
		deps.LockTimeout = DefaultProgressTrackerConfig().LockTimeout
	}
	return &DeleteUserHandler{
		users:       deps.Users,
		locker:      deps.Locker,
		evictor:     deps.Evictor,
		clock:       deps.Clock,
		publisher:   deps.Publisher,
		log:         deps.Logger.With(logger.Component("delete_user")),
		lockTimeout: deps.LockTimeout,
	}
}

// Handle deletes the user. Both the achievement and the progress lock are
// held, in that order, so no evaluation or progress write interleaves.
func (h *DeleteUserHandler) Handle(ctx context.Context, cmd DeleteUserCommand) error {
	if cmd.UserID <= 0 {
		return shared.ErrInvalidUserID
	}

	for _, key := range []string{achievement.LockKey(cmd.UserID), progress.LockKey(cmd.UserID)} {
		lockCtx, cancel := context.WithTimeout(ctx, h.lockTimeout)
		unlock, err := h.locker.Lock(lockCtx, key)
		cancel()
		if err != nil {
			return fmt.Errorf("delete_user: %w", err)
		}
		defer unlock()
	}

	found, err := h.users.Delete(ctx, cmd.UserID)
	if err != nil {
		return fmt.Errorf("delete_user: %w", shared.StoreError("user", "Delete", err))
	}
	if !found {
		return shared.ErrUserNotFound
	}

	if h.evictor != nil {
		if err := h.evictor.Evict(ctx, cmd.UserID); err != nil {
			h.log.Error("failed to evict cached progress", logger.UserID(cmd.UserID), logger.Err(err))
		}
	}

	h.log.Info("user deleted", logger.UserID(cmd.UserID))

	e := shared.NewUserDeletedEvent(cmd.UserID, h.clock.Now())
	if cmd.CorrelationID != "" {
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if err := h.publisher.Publish(e); err != nil {
		h.log.Warn("failed to publish event", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
	return nil
}
