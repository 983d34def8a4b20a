package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

// AchievementRepository implements achievement.UnlockedStore for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// SeedCatalog upserts every catalog definition into the achievements table.
func (r *AchievementRepository) SeedCatalog(ctx context.Context, catalog *achievement.Catalog) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, d := range catalog.All() {
			batch.Queue(`
				INSERT INTO achievements (id, name, description, icon)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					icon = EXCLUDED.icon
			`, d.ID, d.Name, d.Description, d.Icon)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return shared.StoreError("achievement", "SeedCatalog", fmt.Errorf("failed to seed catalog: %w", err))
	}
	return nil
}

// Load returns the IDs of the user's unlocked achievements.
func (r *AchievementRepository) Load(ctx context.Context, userID int64) (achievement.UnlockedSet, error) {
	set, err := r.load(ctx, r.conn, userID)
	if err != nil {
		return nil, shared.StoreError("achievement", "Load", err)
	}
	return set, nil
}

// Save adds the IDs in set for the user and returns the stored set.
// IDs already stored and missing from set are kept.
func (r *AchievementRepository) Save(ctx context.Context, userID int64, set achievement.UnlockedSet) (achievement.UnlockedSet, error) {
	var saved achievement.UnlockedSet
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if ids := set.IDs(); len(ids) > 0 {
			_, err := tx.Exec(ctx, `
				INSERT INTO user_achievements (user_id, achievement_id)
				SELECT $1, unnest($2::bigint[])
				ON CONFLICT (user_id, achievement_id) DO NOTHING
			`, userID, ids)
			if err != nil {
				if IsForeignKeyViolation(err) {
					return shared.WrapError("achievement", "Save", shared.ErrNotFound, "unknown user or achievement", err)
				}
				return fmt.Errorf("failed to insert user achievements: %w", err)
			}
		}

		var err error
		saved, err = r.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, shared.StoreError("achievement", "Save", err)
	}
	return saved, nil
}

func (r *AchievementRepository) load(ctx context.Context, q Querier, userID int64) (achievement.UnlockedSet, error) {
	rows, err := q.Query(ctx, `
		SELECT achievement_id FROM user_achievements WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user achievements: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user achievements: %w", err)
	}
	return achievement.NewUnlockedSet(ids...), nil
}
