package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

func TestNewUser(t *testing.T) {
	now := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

	u, err := NewUser(NewUserParams{Name: "  Aru ", Email: "Aru@Example.com"}, now)
	require.NoError(t, err)
	assert.Equal(t, "Aru", u.Name)
	assert.Equal(t, "aru@example.com", u.Email)
	assert.Equal(t, now, u.JoinDate)
	assert.Zero(t, u.ID)
}

func TestNewUserParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		params NewUserParams
		want   error
	}{
		{"empty name", NewUserParams{Name: " ", Email: "a@b.com"}, shared.ErrEmptyName},
		{"missing email", NewUserParams{Name: "A"}, shared.ErrInvalidEmail},
		{"bad email", NewUserParams{Name: "A", Email: "not-an-email"}, shared.ErrInvalidEmail},
		{"display name form", NewUserParams{Name: "A", Email: "A <a@b.com>"}, shared.ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestUser_Apply(t *testing.T) {
	u := &User{ID: 1, Name: "Aru", Email: "aru@example.com", Bio: "old"}

	require.NoError(t, u.Apply(UpdateParams{Name: "  Aruzhan ", Bio: "learning Go"}))
	assert.Equal(t, "Aruzhan", u.Name)
	assert.Equal(t, "learning Go", u.Bio)
	assert.Equal(t, "aru@example.com", u.Email)

	err := u.Apply(UpdateParams{Name: " ", Bio: "ignored"})
	assert.ErrorIs(t, err, shared.ErrEmptyName)
	assert.Equal(t, "Aruzhan", u.Name)
	assert.Equal(t, "learning Go", u.Bio)
}
