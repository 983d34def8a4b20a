package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

type stubProgress struct {
	rec *progress.Record
	err error
}

func (s stubProgress) GetOrCreate(context.Context, int64) (*progress.Record, error) {
	return s.rec, s.err
}

type stubUnlocked struct {
	defs []achievement.Definition
	err  error
}

func (s stubUnlocked) Unlocked(context.Context, int64) ([]achievement.Definition, error) {
	return s.defs, s.err
}

func TestGetProgress(t *testing.T) {
	rec, err := progress.NewRecord(7)
	require.NoError(t, err)
	_, _ = rec.CompleteLesson("b")
	_, _ = rec.CompleteLesson("a")
	rec.RecordStudyDay(timeutil.NewDate(2024, 3, 10))
	rec.AddStudyTime(125)

	dto, err := NewGetProgressHandler(stubProgress{rec: rec}).Handle(context.Background(), GetProgressQuery{UserID: 7})
	require.NoError(t, err)

	assert.Equal(t, int64(7), dto.UserID)
	assert.Equal(t, []string{"a", "b"}, dto.CompletedLessons)
	assert.Equal(t, 2, dto.LessonsCompleted)
	assert.Equal(t, 1, dto.StudyStreak)
	assert.Equal(t, 125, dto.TotalStudyTime)
	assert.Equal(t, "2h 5m", dto.StudyTimeFormatted)
	require.NotNil(t, dto.LastStudiedDate)
	assert.Equal(t, "2024-03-10", dto.LastStudiedDate.String())
}

func TestGetProgress_Errors(t *testing.T) {
	h := NewGetProgressHandler(stubProgress{err: shared.ErrUserNotFound})

	_, err := h.Handle(context.Background(), GetProgressQuery{UserID: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = h.Handle(context.Background(), GetProgressQuery{UserID: 3})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetUnlockedAchievements(t *testing.T) {
	catalog := achievement.DefaultCatalog()
	first, _ := catalog.Get(achievement.FirstSteps)

	h := NewGetUnlockedAchievementsHandler(stubUnlocked{defs: []achievement.Definition{first}})
	dtos, err := h.Handle(context.Background(), GetUnlockedAchievementsQuery{UserID: 1})
	require.NoError(t, err)
	require.Len(t, dtos, 1)
	assert.Equal(t, AchievementDTO{ID: 1, Name: "First Steps", Description: first.Description, Icon: first.Icon}, dtos[0])

	_, err = h.Handle(context.Background(), GetUnlockedAchievementsQuery{UserID: -5})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestListCatalog(t *testing.T) {
	dtos := NewListCatalogHandler(achievement.DefaultCatalog()).Handle(context.Background())
	require.Len(t, dtos, 3)
	for i, d := range dtos {
		assert.Equal(t, int64(i+1), d.ID)
	}
}

func TestGetUser(t *testing.T) {
	arena := memory.NewArena()
	u, err := arena.Users().Create(context.Background(), &user.User{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	h := NewGetUserHandler(arena.Users())
	got, err := h.Handle(context.Background(), GetUserQuery{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	_, err = h.Handle(context.Background(), GetUserQuery{UserID: u.ID + 1})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}
