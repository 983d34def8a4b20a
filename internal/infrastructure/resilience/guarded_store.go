// Package resilience puts circuit breakers in front of the persistent stores.
// While a breaker is open every call fails fast with ErrStoreUnavailable.
package resilience

import (
	"context"
	"errors"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/pkg/circuitbreaker"
	"github.com/alem-hub/learning-progress/pkg/logger"
)

// NewStoreBreaker returns a breaker that only counts unavailability, so
// NotFound, AlreadyExists and validation errors never open it.
func NewStoreBreaker(name string, log *logger.Logger) *circuitbreaker.CircuitBreaker {
	if log == nil {
		log = logger.Nop()
	}
	return circuitbreaker.StoreBreaker(name, isStoreFailure, func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
}

func isStoreFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return shared.IsUnavailable(err)
	}
	return true
}

func guard(cb *circuitbreaker.CircuitBreaker, ctx context.Context, domain, op string, fn func(context.Context) error) error {
	err := cb.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return shared.WrapError(domain, op, shared.ErrStoreUnavailable, "store circuit is open", err)
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

// ProgressStore guards a progress.Store.
type ProgressStore struct {
	next progress.Store
	cb   *circuitbreaker.CircuitBreaker
}

// NewProgressStore wraps next.
func NewProgressStore(next progress.Store, cb *circuitbreaker.CircuitBreaker) *ProgressStore {
	return &ProgressStore{next: next, cb: cb}
}

func (s *ProgressStore) Load(ctx context.Context, userID int64) (rec *progress.Record, found bool, err error) {
	err = guard(s.cb, ctx, "progress", "Load", func(ctx context.Context) error {
		var loadErr error
		rec, found, loadErr = s.next.Load(ctx, userID)
		return loadErr
	})
	return rec, found, err
}

func (s *ProgressStore) Save(ctx context.Context, rec *progress.Record) (saved *progress.Record, err error) {
	err = guard(s.cb, ctx, "progress", "Save", func(ctx context.Context) error {
		var saveErr error
		saved, saveErr = s.next.Save(ctx, rec)
		return saveErr
	})
	return saved, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Unlocked achievements
// ─────────────────────────────────────────────────────────────────────────────

// UnlockedStore guards an achievement.UnlockedStore.
type UnlockedStore struct {
	next achievement.UnlockedStore
	cb   *circuitbreaker.CircuitBreaker
}

// NewUnlockedStore wraps next.
func NewUnlockedStore(next achievement.UnlockedStore, cb *circuitbreaker.CircuitBreaker) *UnlockedStore {
	return &UnlockedStore{next: next, cb: cb}
}

func (s *UnlockedStore) Load(ctx context.Context, userID int64) (set achievement.UnlockedSet, err error) {
	err = guard(s.cb, ctx, "achievement", "Load", func(ctx context.Context) error {
		var loadErr error
		set, loadErr = s.next.Load(ctx, userID)
		return loadErr
	})
	return set, err
}

func (s *UnlockedStore) Save(ctx context.Context, userID int64, set achievement.UnlockedSet) (saved achievement.UnlockedSet, err error) {
	err = guard(s.cb, ctx, "achievement", "Save", func(ctx context.Context) error {
		var saveErr error
		saved, saveErr = s.next.Save(ctx, userID, set)
		return saveErr
	})
	return saved, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

// UserRepository guards a user.Repository.
type UserRepository struct {
	next user.Repository
	cb   *circuitbreaker.CircuitBreaker
}

// NewUserRepository wraps next.
func NewUserRepository(next user.Repository, cb *circuitbreaker.CircuitBreaker) *UserRepository {
	return &UserRepository{next: next, cb: cb}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) (created *user.User, err error) {
	err = guard(r.cb, ctx, "user", "Create", func(ctx context.Context) error {
		var createErr error
		created, createErr = r.next.Create(ctx, u)
		return createErr
	})
	return created, err
}

func (r *UserRepository) Get(ctx context.Context, id int64) (u *user.User, found bool, err error) {
	err = guard(r.cb, ctx, "user", "Get", func(ctx context.Context) error {
		var getErr error
		u, found, getErr = r.next.Get(ctx, id)
		return getErr
	})
	return u, found, err
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (exists bool, err error) {
	err = guard(r.cb, ctx, "user", "Exists", func(ctx context.Context) error {
		var existsErr error
		exists, existsErr = r.next.Exists(ctx, id)
		return existsErr
	})
	return exists, err
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) (updated *user.User, found bool, err error) {
	err = guard(r.cb, ctx, "user", "Update", func(ctx context.Context) error {
		var updateErr error
		updated, found, updateErr = r.next.Update(ctx, u)
		return updateErr
	})
	return updated, found, err
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (found bool, err error) {
	err = guard(r.cb, ctx, "user", "Delete", func(ctx context.Context) error {
		var deleteErr error
		found, deleteErr = r.next.Delete(ctx, id)
		return deleteErr
	})
	return found, err
}
