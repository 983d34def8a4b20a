package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learning-progress/pkg/circuitbreaker"
)

type flakyStore struct {
	err   error
	calls int
}

func (s *flakyStore) Load(context.Context, int64) (*progress.Record, bool, error) {
	s.calls++
	return nil, false, s.err
}

func (s *flakyStore) Save(context.Context, *progress.Record) (*progress.Record, error) {
	s.calls++
	return nil, s.err
}

func TestProgressStore_FailsFastWhenOpen(t *testing.T) {
	store := &flakyStore{err: errors.New("connection reset")}
	guarded := NewProgressStore(store, NewStoreBreaker("progress", nil))

	for i := 0; i < 5; i++ {
		_, _, err := guarded.Load(context.Background(), 1)
		require.Error(t, err)
	}
	require.Equal(t, 5, store.calls)

	_, _, err := guarded.Load(context.Background(), 1)
	assert.True(t, shared.IsUnavailable(err))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 5, store.calls, "open circuit must not reach the store")
}

func TestProgressStore_DomainOutcomesDoNotTrip(t *testing.T) {
	store := &flakyStore{err: shared.ErrNegativeSnapshot}
	cb := NewStoreBreaker("progress", nil)
	guarded := NewProgressStore(store, cb)

	for i := 0; i < 10; i++ {
		_, err := guarded.Save(context.Background(), &progress.Record{UserID: 1})
		assert.ErrorIs(t, err, shared.ErrNegativeSnapshot)
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestGuardedStores_PassThrough(t *testing.T) {
	arena := memory.NewArena()
	cb := NewStoreBreaker("store", nil)
	users := NewUserRepository(arena.Users(), cb)
	unlocked := NewUnlockedStore(arena.Unlocked(), cb)
	records := NewProgressStore(arena.Progress(), cb)
	ctx := context.Background()

	u, err := users.Create(ctx, &user.User{Name: "Learner", Email: "learner@example.com"})
	require.NoError(t, err)

	_, err = users.Create(ctx, &user.User{Name: "Twin", Email: "learner@example.com"})
	assert.True(t, shared.IsAlreadyExists(err))

	exists, err := users.Exists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	_, found, err := users.Get(ctx, 999)
	require.NoError(t, err)
	assert.False(t, found)

	rec, err := progress.NewRecord(u.ID)
	require.NoError(t, err)
	_, err = records.Save(ctx, rec)
	require.NoError(t, err)
	_, found, err = records.Load(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, found)

	set, err := unlocked.Load(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, set)

	renamed := *u
	renamed.Name = "Renamed"
	updated, found, err := users.Update(ctx, &renamed)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Renamed", updated.Name)

	deleted, err := users.Delete(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, found, err = records.Load(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}
