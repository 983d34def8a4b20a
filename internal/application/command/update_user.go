package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/pkg/logger"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// UpdateUserCommand replaces a user's name and bio.
type UpdateUserCommand struct {
	UserID        int64
	Name          string
	Bio           string
	CorrelationID string
}

// UpdateUserHandler handles the UpdateUserCommand.
type UpdateUserHandler struct {
	users     user.Repository
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewUpdateUserHandler creates a new UpdateUserHandler.
func NewUpdateUserHandler(users user.Repository, clock timeutil.Clock, publisher shared.EventPublisher, log *logger.Logger) *UpdateUserHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UpdateUserHandler{
		users:     users,
		clock:     clock,
		publisher: publisher,
		log:       log.With(logger.Component("update_user")),
	}
}

// Handle validates the new profile fields and stores them.
func (h *UpdateUserHandler) Handle(ctx context.Context, cmd UpdateUserCommand) (*user.User, error) {
	if cmd.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	params := user.UpdateParams{Name: cmd.Name, Bio: cmd.Bio}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	current, found, err := h.users.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("update_user: %w", shared.StoreError("user", "Get", err))
	}
	if !found {
		return nil, shared.ErrUserNotFound
	}

	if err := current.Apply(params); err != nil {
		return nil, err
	}

	updated, found, err := h.users.Update(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("update_user: %w", shared.StoreError("user", "Update", err))
	}
	if !found {
		return nil, shared.ErrUserNotFound
	}

	h.log.Info("user updated", logger.UserID(updated.ID))

	e := shared.NewUserUpdatedEvent(updated.ID, updated.Name, updated.Bio, h.clock.Now())
	if cmd.CorrelationID != "" {
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if err := h.publisher.Publish(e); err != nil {
		h.log.Warn("failed to publish event", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}

	return updated, nil
}
