// Package memory provides in-process implementations of the storage contracts.
// All entities live in one Arena keyed by user id; relations are id references.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
)

// Arena owns every entity kept in memory.
type Arena struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]user.User
	emails   map[string]int64
	progress map[int64]*progress.Record
	unlocked map[int64]achievement.UnlockedSet
	now      func() time.Time
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		users:    make(map[int64]user.User),
		emails:   make(map[string]int64),
		progress: make(map[int64]*progress.Record),
		unlocked: make(map[int64]achievement.UnlockedSet),
		now:      time.Now,
	}
}

// Users returns the user.Repository view of the arena.
func (a *Arena) Users() *UserRepo { return &UserRepo{a: a} }

// Progress returns the progress.Store view of the arena.
func (a *Arena) Progress() *ProgressStore { return &ProgressStore{a: a} }

// Unlocked returns the achievement.UnlockedStore view of the arena.
func (a *Arena) Unlocked() *UnlockedStore { return &UnlockedStore{a: a} }

// DeleteUser removes a user together with their progress and achievements.
func (a *Arena) DeleteUser(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[id]
	if !ok {
		return false
	}
	delete(a.emails, u.Email)
	delete(a.users, id)
	delete(a.progress, id)
	delete(a.unlocked, id)
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

// UserRepo implements user.Repository and progress.UserLookup.
type UserRepo struct {
	a *Arena
}

// Create assigns the next id and stores u.
func (r *UserRepo) Create(ctx context.Context, u *user.User) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreError("user", "Create", err)
	}

	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, taken := r.a.emails[email]; taken {
		return nil, shared.ErrUserAlreadyExists
	}

	r.a.nextID++
	stored := *u
	stored.ID = r.a.nextID
	stored.Email = email
	if stored.JoinDate.IsZero() {
		stored.JoinDate = r.a.now()
	}

	r.a.users[stored.ID] = stored
	r.a.emails[email] = stored.ID

	out := stored
	return &out, nil
}

// Get returns the user with id.
func (r *UserRepo) Get(ctx context.Context, id int64) (*user.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, shared.StoreError("user", "Get", err)
	}

	r.a.mu.RLock()
	defer r.a.mu.RUnlock()

	u, ok := r.a.users[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

// Exists reports whether a user with id is registered.
func (r *UserRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, ok, err := r.Get(ctx, id)
	return ok, err
}

// Update stores the name and bio of u.
func (r *UserRepo) Update(ctx context.Context, u *user.User) (*user.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, shared.StoreError("user", "Update", err)
	}

	r.a.mu.Lock()
	defer r.a.mu.Unlock()

	stored, ok := r.a.users[u.ID]
	if !ok {
		return nil, false, nil
	}
	stored.Name = u.Name
	stored.Bio = u.Bio
	r.a.users[u.ID] = stored

	out := stored
	return &out, true, nil
}

// Delete removes the user and everything that references them.
func (r *UserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.StoreError("user", "Delete", err)
	}
	return r.a.DeleteUser(id), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

// ProgressStore implements progress.Store. Records are copied on the way in and out.
type ProgressStore struct {
	a *Arena
}

// Load returns a copy of the user's record.
func (s *ProgressStore) Load(ctx context.Context, userID int64) (*progress.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, shared.StoreError("progress", "Load", err)
	}

	s.a.mu.RLock()
	defer s.a.mu.RUnlock()

	rec, ok := s.a.progress[userID]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

// Save replaces the user's record with a copy of rec if rec carries the stored version.
func (s *ProgressStore) Save(ctx context.Context, rec *progress.Record) (*progress.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreError("progress", "Save", err)
	}

	s.a.mu.Lock()
	defer s.a.mu.Unlock()

	if _, ok := s.a.users[rec.UserID]; !ok {
		return nil, shared.ErrUserNotFound
	}

	if prev, ok := s.a.progress[rec.UserID]; ok && prev.Version != rec.Version {
		return nil, shared.ErrProgressConflict
	}

	stored := rec.Clone()
	stored.Version = rec.Version + 1
	stored.UpdatedAt = s.a.now()
	s.a.progress[rec.UserID] = stored
	return stored.Clone(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Unlocked achievements
// ─────────────────────────────────────────────────────────────────────────────

// UnlockedStore implements achievement.UnlockedStore.
type UnlockedStore struct {
	a *Arena
}

// Load returns a copy of the user's unlocked set.
func (s *UnlockedStore) Load(ctx context.Context, userID int64) (achievement.UnlockedSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreError("achievement", "Load", err)
	}

	s.a.mu.RLock()
	defer s.a.mu.RUnlock()

	return s.a.unlocked[userID].Union(nil), nil
}

// Save merges set into the stored set and returns the result.
func (s *UnlockedStore) Save(ctx context.Context, userID int64, set achievement.UnlockedSet) (achievement.UnlockedSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreError("achievement", "Save", err)
	}

	s.a.mu.Lock()
	defer s.a.mu.Unlock()

	if _, ok := s.a.users[userID]; !ok {
		return nil, shared.ErrUserNotFound
	}

	merged := s.a.unlocked[userID].Union(set)
	s.a.unlocked[userID] = merged
	return merged.Union(nil), nil
}
