package postgres

import (
	"context"
	"fmt"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
)

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// Create inserts the user and returns it with the assigned ID.
func (r *UserRepository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	query := `
		INSERT INTO users (name, email, bio, join_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, join_date
	`

	created := *u
	err := r.conn.QueryRow(ctx, query, u.Name, u.Email, u.Bio, u.JoinDate).Scan(&created.ID, &created.JoinDate)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, shared.ErrUserAlreadyExists
		}
		return nil, shared.StoreError("user", "Create", fmt.Errorf("failed to create user: %w", err))
	}

	return &created, nil
}

// Get returns a user by ID.
func (r *UserRepository) Get(ctx context.Context, id int64) (*user.User, bool, error) {
	query := `
		SELECT id, name, email, bio, join_date
		FROM users
		WHERE id = $1
	`

	var u user.User
	err := r.conn.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Bio, &u.JoinDate)
	if err != nil {
		if IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, shared.StoreError("user", "Get", fmt.Errorf("failed to get user: %w", err))
	}

	return &u, true, nil
}

// Exists checks whether a user with the ID exists.
func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, shared.StoreError("user", "Exists", fmt.Errorf("failed to check user: %w", err))
	}
	return exists, nil
}

// Update stores the name and bio of u.
func (r *UserRepository) Update(ctx context.Context, u *user.User) (*user.User, bool, error) {
	query := `
		UPDATE users SET name = $2, bio = $3
		WHERE id = $1
		RETURNING id, name, email, bio, join_date
	`

	var updated user.User
	err := r.conn.QueryRow(ctx, query, u.ID, u.Name, u.Bio).
		Scan(&updated.ID, &updated.Name, &updated.Email, &updated.Bio, &updated.JoinDate)
	if err != nil {
		if IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, shared.StoreError("user", "Update", fmt.Errorf("failed to update user: %w", err))
	}

	return &updated, true, nil
}

// Delete removes the user. Progress, completed lessons and unlocked
// achievements are removed by ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, shared.StoreError("user", "Delete", fmt.Errorf("failed to delete user: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}
