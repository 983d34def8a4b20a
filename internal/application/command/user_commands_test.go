package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/infrastructure/persistence/memory"
)

type recordingEvictor struct {
	mu      sync.Mutex
	evicted []int64
	err     error
}

func (e *recordingEvictor) Evict(_ context.Context, userID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = append(e.evicted, userID)
	return e.err
}

func TestUpdateUser_ReplacesNameAndBio(t *testing.T) {
	f := newFixture(t)
	h := NewUpdateUserHandler(f.arena.Users(), f.clock, f.publisher, nil)
	ctx := context.Background()

	updated, err := h.Handle(ctx, UpdateUserCommand{UserID: f.userID, Name: "  Renamed ", Bio: "Go learner", CorrelationID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "Go learner", updated.Bio)
	assert.Equal(t, "learner@example.com", updated.Email)

	stored, _, err := f.arena.Users().Get(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)

	require.Len(t, f.publisher.events, 1)
	e, ok := f.publisher.events[0].(shared.UserUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, "req-1", e.CorrelationID)
	assert.Equal(t, "Go learner", e.Bio)
}

func TestUpdateUser_Errors(t *testing.T) {
	f := newFixture(t)
	h := NewUpdateUserHandler(f.arena.Users(), f.clock, f.publisher, nil)

	tests := []struct {
		name string
		cmd  UpdateUserCommand
		want error
	}{
		{"invalid id", UpdateUserCommand{UserID: 0, Name: "A"}, shared.ErrInvalidUserID},
		{"blank name", UpdateUserCommand{UserID: f.userID, Name: "   "}, shared.ErrEmptyName},
		{"unknown user", UpdateUserCommand{UserID: 999, Name: "A"}, shared.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.publisher.types())
}

func TestDeleteUser_CascadesAndEvicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.CompleteLesson(ctx, CompleteLessonCommand{UserID: f.userID, LessonID: "intro"})
	require.NoError(t, err)
	_, err = f.arena.Unlocked().Save(ctx, f.userID, achievement.NewUnlockedSet(1))
	require.NoError(t, err)

	evictor := &recordingEvictor{}
	h := NewDeleteUserHandler(DeleteUserDeps{
		Users:     f.arena.Users(),
		Locker:    memory.NewKeyedLocker(),
		Evictor:   evictor,
		Clock:     f.clock,
		Publisher: f.publisher,
	})

	require.NoError(t, h.Handle(ctx, DeleteUserCommand{UserID: f.userID}))

	exists, err := f.arena.Users().Exists(ctx, f.userID)
	require.NoError(t, err)
	assert.False(t, exists)
	_, found, err := f.arena.Progress().Load(ctx, f.userID)
	require.NoError(t, err)
	assert.False(t, found)
	set, err := f.arena.Unlocked().Load(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, set.IDs())

	assert.Equal(t, []int64{f.userID}, evictor.evicted)
	assert.Contains(t, f.publisher.types(), shared.EventUserDeleted)

	_, err = f.tracker.GetOrCreate(ctx, f.userID)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestDeleteUser_UnknownUser(t *testing.T) {
	f := newFixture(t)
	evictor := &recordingEvictor{}
	h := NewDeleteUserHandler(DeleteUserDeps{Users: f.arena.Users(), Locker: memory.NewKeyedLocker(), Evictor: evictor})

	err := h.Handle(context.Background(), DeleteUserCommand{UserID: 999})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.Empty(t, evictor.evicted)

	err = h.Handle(context.Background(), DeleteUserCommand{UserID: -1})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestDeleteUser_EvictFailureStillDeletes(t *testing.T) {
	f := newFixture(t)
	h := NewDeleteUserHandler(DeleteUserDeps{
		Users:   f.arena.Users(),
		Locker:  memory.NewKeyedLocker(),
		Evictor: &recordingEvictor{err: errors.New("redis: connection refused")},
	})

	require.NoError(t, h.Handle(context.Background(), DeleteUserCommand{UserID: f.userID}))

	exists, err := f.arena.Users().Exists(context.Background(), f.userID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteUser_WaitsForProgressLock(t *testing.T) {
	f := newFixture(t)
	locker := memory.NewKeyedLocker()
	h := NewDeleteUserHandler(DeleteUserDeps{Users: f.arena.Users(), Locker: locker, LockTimeout: 20 * time.Millisecond})

	unlock, err := locker.Lock(context.Background(), progress.LockKey(f.userID))
	require.NoError(t, err)

	err = h.Handle(context.Background(), DeleteUserCommand{UserID: f.userID})
	assert.Error(t, err)
	unlock()

	exists, err := f.arena.Users().Exists(context.Background(), f.userID)
	require.NoError(t, err)
	assert.True(t, exists, "user is kept while a progress write holds the lock")

	require.NoError(t, h.Handle(context.Background(), DeleteUserCommand{UserID: f.userID}))
}
