package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Store for PostgreSQL.
// The lesson set lives in user_completed_lessons and is only ever appended to.
type ProgressRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn, now: time.Now}
}

// Load returns the user's record with its completed lessons.
func (r *ProgressRepository) Load(ctx context.Context, userID int64) (*progress.Record, bool, error) {
	var rec *progress.Record
	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		var err error
		rec, err = r.load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, false, shared.StoreError("progress", "Load", err)
	}
	return rec, rec != nil, nil
}

// Save writes the counters and appends new lessons in one transaction.
// The upsert only applies when the stored version still equals rec.Version;
// otherwise another writer got there first and ErrProgressConflict is returned.
func (r *ProgressRepository) Save(ctx context.Context, rec *progress.Record) (*progress.Record, error) {
	var saved *progress.Record
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO user_progress (
				user_id, lessons_completed, study_streak, total_study_time, last_studied_date, updated_at, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7::bigint + 1)
			ON CONFLICT (user_id) DO UPDATE SET
				lessons_completed = EXCLUDED.lessons_completed,
				study_streak = EXCLUDED.study_streak,
				total_study_time = EXCLUDED.total_study_time,
				last_studied_date = EXCLUDED.last_studied_date,
				updated_at = EXCLUDED.updated_at,
				version = EXCLUDED.version
			WHERE user_progress.version = $7::bigint
		`,
			rec.UserID,
			rec.LessonsCompleted,
			rec.StudyStreak,
			rec.TotalStudyTime,
			dateArg(rec.LastStudiedDate),
			r.now().UTC(),
			rec.Version,
		)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return shared.ErrUserNotFound
			}
			if IsCheckViolation(err) {
				return shared.ErrNegativeSnapshot
			}
			return fmt.Errorf("failed to upsert progress: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrProgressConflict
		}

		if lessons := rec.CompletedLessons.Sorted(); len(lessons) > 0 {
			_, err = tx.Exec(ctx, `
				INSERT INTO user_completed_lessons (user_id, lesson_id)
				SELECT $1, unnest($2::text[])
				ON CONFLICT (user_id, lesson_id) DO NOTHING
			`, rec.UserID, lessons)
			if err != nil {
				return fmt.Errorf("failed to insert completed lessons: %w", err)
			}
		}

		saved, err = r.load(ctx, tx, rec.UserID)
		return err
	})
	if err != nil {
		return nil, shared.StoreError("progress", "Save", err)
	}
	return saved, nil
}

func (r *ProgressRepository) load(ctx context.Context, q Querier, userID int64) (*progress.Record, error) {
	var (
		rec         progress.Record
		lastStudied *time.Time
	)
	err := q.QueryRow(ctx, `
		SELECT user_id, lessons_completed, study_streak, total_study_time, last_studied_date, updated_at, version
		FROM user_progress
		WHERE user_id = $1
	`, userID).Scan(
		&rec.UserID,
		&rec.LessonsCompleted,
		&rec.StudyStreak,
		&rec.TotalStudyTime,
		&lastStudied,
		&rec.UpdatedAt,
		&rec.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	if lastStudied != nil {
		d := timeutil.DateOf(*lastStudied)
		rec.LastStudiedDate = &d
	}

	rows, err := q.Query(ctx, `
		SELECT lesson_id FROM user_completed_lessons WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed lessons: %w", err)
	}
	lessons, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan completed lessons: %w", err)
	}
	rec.CompletedLessons = progress.NewLessonSet(lessons...)

	return &rec, nil
}

func dateArg(d *timeutil.Date) any {
	if d == nil {
		return nil
	}
	return d.In(time.UTC)
}
