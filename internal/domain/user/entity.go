// Package user содержит минимальную модель пользователя.
// Прогресс и достижения ссылаются на пользователя только по ID.
package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

// User - зарегистрированный пользователь.
type User struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Bio      string    `json:"bio,omitempty"`
	JoinDate time.Time `json:"joinDate"`
}

// NewUserParams - параметры создания пользователя.
type NewUserParams struct {
	Name  string
	Email string
	Bio   string
}

// Validate проверяет параметры создания.
func (p NewUserParams) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.ErrEmptyName
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(p.Email))
	if err != nil || addr.Address != strings.TrimSpace(p.Email) {
		return shared.ErrInvalidEmail
	}
	return nil
}

// NewUser создаёт пользователя без ID; ID назначает хранилище.
func NewUser(p NewUserParams, now time.Time) (*User, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &User{
		Name:     strings.TrimSpace(p.Name),
		Email:    strings.ToLower(strings.TrimSpace(p.Email)),
		Bio:      p.Bio,
		JoinDate: now,
	}, nil
}

// UpdateParams - новые значения изменяемых полей профиля.
// Email и дата регистрации не меняются.
type UpdateParams struct {
	Name string
	Bio  string
}

// Validate проверяет параметры обновления.
func (p UpdateParams) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.ErrEmptyName
	}
	return nil
}

// Apply заменяет имя и описание пользователя.
func (u *User) Apply(p UpdateParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	u.Name = strings.TrimSpace(p.Name)
	u.Bio = p.Bio
	return nil
}

// Repository хранит пользователей.
type Repository interface {
	// Create назначает ID и сохраняет пользователя.
	// Возвращает ErrUserAlreadyExists при повторном email.
	Create(ctx context.Context, u *User) (*User, error)

	// Get возвращает пользователя; found == false, если его нет.
	Get(ctx context.Context, id int64) (u *User, found bool, err error)

	// Exists проверяет существование пользователя.
	Exists(ctx context.Context, id int64) (bool, error)

	// Update сохраняет имя и описание; found == false, если пользователя нет.
	Update(ctx context.Context, u *User) (updated *User, found bool, err error)

	// Delete удаляет пользователя вместе с прогрессом и достижениями.
	Delete(ctx context.Context, id int64) (found bool, err error)
}
