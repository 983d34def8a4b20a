package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/pkg/logger"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// CreateUserCommand registers a user that progress can be tracked for.
type CreateUserCommand struct {
	Name          string
	Email         string
	Bio           string
	CorrelationID string
}

// CreateUserHandler handles the CreateUserCommand.
type CreateUserHandler struct {
	users     user.Repository
	clock     timeutil.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewCreateUserHandler creates a new CreateUserHandler.
func NewCreateUserHandler(users user.Repository, clock timeutil.Clock, publisher shared.EventPublisher, log *logger.Logger) *CreateUserHandler {
	if clock == nil {
		clock = timeutil.NewSystemClock(nil)
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CreateUserHandler{
		users:     users,
		clock:     clock,
		publisher: publisher,
		log:       log.With(logger.Component("create_user")),
	}
}

// Handle validates and stores the user.
func (h *CreateUserHandler) Handle(ctx context.Context, cmd CreateUserCommand) (*user.User, error) {
	u, err := user.NewUser(user.NewUserParams{Name: cmd.Name, Email: cmd.Email, Bio: cmd.Bio}, h.clock.Now())
	if err != nil {
		return nil, err
	}

	created, err := h.users.Create(ctx, u)
	if err != nil {
		if shared.IsAlreadyExists(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create_user: %w", shared.StoreError("user", "Create", err))
	}

	h.log.Info("user created", logger.UserID(created.ID))

	e := shared.NewUserCreatedEvent(created.ID, created.Name, created.Email, created.JoinDate)
	if cmd.CorrelationID != "" {
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if err := h.publisher.Publish(e); err != nil {
		h.log.Warn("failed to publish event", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}

	return created, nil
}
