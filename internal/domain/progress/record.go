package progress

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON SET
// ══════════════════════════════════════════════════════════════════════════════

// LessonSet - множество идентификаторов пройденных уроков.
// Порядок вставки не хранится; в JSON множество сериализуется отсортированным.
type LessonSet map[string]struct{}

// NewLessonSet создаёт множество из списка идентификаторов.
func NewLessonSet(ids ...string) LessonSet {
	s := make(LessonSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains проверяет наличие урока.
func (s LessonSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted возвращает идентификаторы в лексикографическом порядке.
func (s LessonSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON сериализует множество как отсортированный массив.
func (s LessonSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON читает массив строк.
func (s *LessonSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewLessonSet(ids...)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// MaxCounter - верхняя граница любого счётчика, совпадает с INTEGER в хранилище.
const MaxCounter = math.MaxInt32

// Record - запись прогресса пользователя. Одна на пользователя.
type Record struct {
	// UserID - идентификатор владельца записи.
	UserID int64 `json:"userId"`

	// LessonsCompleted - количество пройденных уроков.
	LessonsCompleted int `json:"lessonsCompleted"`

	// CompletedLessons - множество пройденных уроков, только растёт.
	CompletedLessons LessonSet `json:"completedLessons"`

	// StudyStreak - серия дней обучения подряд.
	StudyStreak int `json:"studyStreak"`

	// TotalStudyTime - суммарное время обучения в минутах.
	TotalStudyTime int `json:"totalStudyTime"`

	// LastStudiedDate - дата последнего занятия, nil до первого занятия.
	LastStudiedDate *timeutil.Date `json:"lastStudiedDate"`

	// UpdatedAt - время последнего сохранения.
	UpdatedAt time.Time `json:"updatedAt"`

	// Version - номер сохранённой ревизии. Хранилище принимает запись,
	// только если версия совпадает с сохранённой, и увеличивает её.
	Version int64 `json:"version"`
}

// NewRecord создаёт пустую запись для пользователя.
func NewRecord(userID int64) (*Record, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	return &Record{
		UserID:           userID,
		CompletedLessons: NewLessonSet(),
	}, nil
}

// Clone возвращает независимую копию записи.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.CompletedLessons = make(LessonSet, len(r.CompletedLessons))
	for id := range r.CompletedLessons {
		c.CompletedLessons[id] = struct{}{}
	}
	if r.LastStudiedDate != nil {
		d := *r.LastStudiedDate
		c.LastStudiedDate = &d
	}
	return &c
}

// CompleteLesson добавляет урок в множество и пересчитывает счётчик.
// Возвращает true, если урок новый.
func (r *Record) CompleteLesson(lessonID string) (bool, error) {
	lessonID = strings.TrimSpace(lessonID)
	if lessonID == "" {
		return false, shared.ErrEmptyLessonID
	}
	if r.CompletedLessons == nil {
		r.CompletedLessons = NewLessonSet()
	}
	if r.CompletedLessons.Contains(lessonID) {
		return false, nil
	}
	r.CompletedLessons[lessonID] = struct{}{}
	r.LessonsCompleted = len(r.CompletedLessons)
	return true, nil
}

// RecordStudyDay применяет расчёт серии к записи.
func (r *Record) RecordStudyDay(today timeutil.Date) StreakResult {
	res := NextStreak(r.StudyStreak, r.LastStudiedDate, today)
	r.StudyStreak = res.Streak
	d := res.LastStudied
	r.LastStudiedDate = &d
	return res
}

// AddStudyTime прибавляет минуты. Неположительные значения игнорируются.
// Если сумма превысит MaxCounter, запись не меняется и возвращается ErrCounterOverflow.
func (r *Record) AddStudyTime(minutes int) (bool, error) {
	if minutes <= 0 {
		return false, nil
	}
	if minutes > MaxCounter-r.TotalStudyTime {
		return false, shared.ErrCounterOverflow
	}
	r.TotalStudyTime += minutes
	return true, nil
}

// Replace перезаписывает счётчики из снимка.
// Множество уроков и дата не трогаются, поэтому LessonsCompleted
// может разойтись с len(CompletedLessons).
func (r *Record) Replace(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.LessonsCompleted = s.LessonsCompleted
	r.StudyStreak = s.StudyStreak
	r.TotalStudyTime = s.TotalStudyTime
	return nil
}

// Snapshot возвращает текущие значения для оценки правил.
func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		LessonsCompleted: r.LessonsCompleted,
		StudyStreak:      r.StudyStreak,
		TotalStudyTime:   r.TotalStudyTime,
	}
}

// Consistent проверяет LessonsCompleted == len(CompletedLessons).
func (r *Record) Consistent() bool {
	return r.LessonsCompleted == len(r.CompletedLessons)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - значения счётчиков на момент оценки или массовой перезаписи.
type Snapshot struct {
	LessonsCompleted int `json:"lessonsCompleted"`
	StudyStreak      int `json:"studyStreak"`
	TotalStudyTime   int `json:"totalStudyTime"`
}

// Validate проверяет, что каждый счётчик лежит в [0, MaxCounter].
func (s Snapshot) Validate() error {
	for _, v := range []int{s.LessonsCompleted, s.StudyStreak, s.TotalStudyTime} {
		if v < 0 {
			return shared.ErrNegativeSnapshot
		}
		if v > MaxCounter {
			return shared.ErrCounterOverflow
		}
	}
	return nil
}
