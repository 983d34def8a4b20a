// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERY
// Возвращает запись прогресса пользователя. Если записи нет, она создаётся
// с нулевыми значениями, поэтому чтение для известного пользователя не
// возвращает NotFound.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressReader возвращает или лениво создаёт запись прогресса.
type ProgressReader interface {
	GetOrCreate(ctx context.Context, userID int64) (*progress.Record, error)
}

// GetProgressQuery содержит параметры запроса.
type GetProgressQuery struct {
	UserID int64
}

// Validate проверяет корректность параметров запроса.
func (q GetProgressQuery) Validate() error {
	if q.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	return nil
}

// ProgressDTO - представление прогресса для ответа.
type ProgressDTO struct {
	UserID           int64          `json:"userId"`
	LessonsCompleted int            `json:"lessonsCompleted"`
	CompletedLessons []string       `json:"completedLessons"`
	StudyStreak      int            `json:"studyStreak"`
	TotalStudyTime   int            `json:"totalStudyTime"`
	LastStudiedDate  *timeutil.Date `json:"lastStudiedDate"`

	// StudyTimeFormatted - время обучения в виде "2h 5m".
	StudyTimeFormatted string `json:"studyTimeFormatted"`
}

// NewProgressDTO строит DTO из записи.
func NewProgressDTO(rec *progress.Record) ProgressDTO {
	return ProgressDTO{
		UserID:             rec.UserID,
		LessonsCompleted:   rec.LessonsCompleted,
		CompletedLessons:   rec.CompletedLessons.Sorted(),
		StudyStreak:        rec.StudyStreak,
		TotalStudyTime:     rec.TotalStudyTime,
		LastStudiedDate:    rec.LastStudiedDate,
		StudyTimeFormatted: timeutil.FormatStudyMinutes(rec.TotalStudyTime),
	}
}

// GetProgressHandler обрабатывает запрос прогресса.
type GetProgressHandler struct {
	reader ProgressReader
}

// NewGetProgressHandler создаёт новый обработчик.
func NewGetProgressHandler(reader ProgressReader) *GetProgressHandler {
	return &GetProgressHandler{reader: reader}
}

// Handle выполняет запрос.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rec, err := h.reader.GetOrCreate(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	dto := NewProgressDTO(rec)
	return &dto, nil
}
