package query

import (
	"context"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
)

// GetUserQuery содержит параметры запроса пользователя.
type GetUserQuery struct {
	UserID int64
}

// GetUserHandler читает пользователя по ID.
type GetUserHandler struct {
	users user.Repository
}

// NewGetUserHandler создаёт новый обработчик.
func NewGetUserHandler(users user.Repository) *GetUserHandler {
	return &GetUserHandler{users: users}
}

// Handle выполняет запрос.
func (h *GetUserHandler) Handle(ctx context.Context, q GetUserQuery) (*user.User, error) {
	if q.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	u, found, err := h.users.Get(ctx, q.UserID)
	if err != nil {
		return nil, shared.StoreError("user", "Get", err)
	}
	if !found {
		return nil, shared.ErrUserNotFound
	}
	return u, nil
}
