package query

import (
	"context"

	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT QUERIES
// Чтение каталога и разблокированных достижений без повторной оценки правил.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockedReader возвращает разблокированные достижения пользователя.
type UnlockedReader interface {
	Unlocked(ctx context.Context, userID int64) ([]achievement.Definition, error)
}

// AchievementDTO - представление достижения.
type AchievementDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// NewAchievementDTO строит DTO из определения.
func NewAchievementDTO(d achievement.Definition) AchievementDTO {
	return AchievementDTO{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
	}
}

// NewAchievementDTOs строит список DTO, сохраняя порядок.
func NewAchievementDTOs(defs []achievement.Definition) []AchievementDTO {
	out := make([]AchievementDTO, 0, len(defs))
	for _, d := range defs {
		out = append(out, NewAchievementDTO(d))
	}
	return out
}

// GetUnlockedAchievementsQuery содержит параметры запроса.
type GetUnlockedAchievementsQuery struct {
	UserID int64
}

// GetUnlockedAchievementsHandler возвращает достижения пользователя.
// Для неизвестного пользователя возвращается ErrUserNotFound.
type GetUnlockedAchievementsHandler struct {
	reader UnlockedReader
}

// NewGetUnlockedAchievementsHandler создаёт новый обработчик.
func NewGetUnlockedAchievementsHandler(reader UnlockedReader) *GetUnlockedAchievementsHandler {
	return &GetUnlockedAchievementsHandler{reader: reader}
}

// Handle выполняет запрос.
func (h *GetUnlockedAchievementsHandler) Handle(ctx context.Context, q GetUnlockedAchievementsQuery) ([]AchievementDTO, error) {
	if q.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	defs, err := h.reader.Unlocked(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	return NewAchievementDTOs(defs), nil
}

// ListCatalogHandler возвращает все определения каталога по возрастанию ID.
type ListCatalogHandler struct {
	catalog *achievement.Catalog
}

// NewListCatalogHandler создаёт новый обработчик.
func NewListCatalogHandler(catalog *achievement.Catalog) *ListCatalogHandler {
	return &ListCatalogHandler{catalog: catalog}
}

// Handle выполняет запрос.
func (h *ListCatalogHandler) Handle(context.Context) []AchievementDTO {
	return NewAchievementDTOs(h.catalog.All())
}
