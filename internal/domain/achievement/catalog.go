// Package achievement содержит определения достижений и их правила.
//
// Каталог строится один раз при старте и дальше только читается;
// движок получает его по указателю.
package achievement

import (
	"fmt"
	"sort"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// Rule - предикат над снимком прогресса ("критерий выполнен").
type Rule func(progress.Snapshot) bool

// LessonsAtLeast срабатывает, когда пройдено не меньше n уроков.
func LessonsAtLeast(n int) Rule {
	return func(s progress.Snapshot) bool { return s.LessonsCompleted >= n }
}

// StreakAtLeast срабатывает при серии не меньше n дней.
func StreakAtLeast(n int) Rule {
	return func(s progress.Snapshot) bool { return s.StudyStreak >= n }
}

// StudyMinutesAtLeast срабатывает при суммарном времени не меньше n минут.
func StudyMinutesAtLeast(n int) Rule {
	return func(s progress.Snapshot) bool { return s.TotalStudyTime >= n }
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Definition - неизменяемое описание достижения.
type Definition struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Rule        Rule   `json:"-"`
}

// Met проверяет критерий на снимке.
func (d Definition) Met(s progress.Snapshot) bool {
	return d.Rule != nil && d.Rule(s)
}

// Идентификаторы стандартного набора.
const (
	FirstSteps      int64 = 1
	QuickLearner    int64 = 2
	ConsistentCoder int64 = 3
)

// DefaultDefinitions возвращает стандартный набор из трёх достижений.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:          FirstSteps,
			Name:        "First Steps",
			Description: "Complete your first lesson.",
			Icon:        "fa-shoe-prints",
			Rule:        LessonsAtLeast(1),
		},
		{
			ID:          QuickLearner,
			Name:        "Quick Learner",
			Description: "Complete 5 lessons.",
			Icon:        "fa-graduation-cap",
			Rule:        LessonsAtLeast(5),
		},
		{
			ID:          ConsistentCoder,
			Name:        "Consistent Coder",
			Description: "Maintain a 3-day study streak.",
			Icon:        "fa-calendar-check",
			Rule:        StreakAtLeast(3),
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog - упорядоченная по ID таблица определений.
type Catalog struct {
	defs []Definition
	byID map[int64]int
}

// NewCatalog проверяет определения и строит каталог.
// ID должны быть положительными и уникальными, правило обязательно.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]Definition, 0, len(defs)),
		byID: make(map[int64]int, len(defs)),
	}

	for _, d := range defs {
		if d.ID <= 0 || d.Name == "" || d.Rule == nil {
			return nil, fmt.Errorf("%w: id=%d name=%q", shared.ErrInvalidDefinition, d.ID, d.Name)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: %d", shared.ErrDuplicateDefinition, d.ID)
		}
		c.byID[d.ID] = -1
		c.defs = append(c.defs, d)
	}

	sort.Slice(c.defs, func(i, j int) bool { return c.defs[i].ID < c.defs[j].ID })
	for i, d := range c.defs {
		c.byID[d.ID] = i
	}

	return c, nil
}

// DefaultCatalog строит каталог из DefaultDefinitions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len возвращает количество определений.
func (c *Catalog) Len() int { return len(c.defs) }

// All возвращает копию определений в порядке возрастания ID.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Get возвращает определение по ID.
func (c *Catalog) Get(id int64) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Evaluate возвращает ещё не открытые определения, чей критерий выполнен,
// в порядке возрастания ID.
func (c *Catalog) Evaluate(s progress.Snapshot, unlocked UnlockedSet) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if unlocked.Contains(d.ID) {
			continue
		}
		if d.Met(s) {
			out = append(out, d)
		}
	}
	return out
}

// Resolve превращает множество ID в определения. Неизвестные ID пропускаются.
func (c *Catalog) Resolve(set UnlockedSet) []Definition {
	out := make([]Definition, 0, len(set))
	for _, d := range c.defs {
		if set.Contains(d.ID) {
			out = append(out, d)
		}
	}
	return out
}
