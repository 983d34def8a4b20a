package achievement

import (
	"context"
	"sort"
	"strconv"
)

// UnlockedSet - множество ID открытых достижений пользователя.
// Только растёт: удаления нет.
type UnlockedSet map[int64]struct{}

// NewUnlockedSet создаёт множество из ID.
func NewUnlockedSet(ids ...int64) UnlockedSet {
	s := make(UnlockedSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains проверяет наличие ID.
func (s UnlockedSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add добавляет ID и сообщает, был ли он новым.
func (s UnlockedSet) Add(id int64) bool {
	if s.Contains(id) {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Union возвращает новое множество s ∪ other.
func (s UnlockedSet) Union(other UnlockedSet) UnlockedSet {
	out := make(UnlockedSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// IDs возвращает ID по возрастанию.
func (s UnlockedSet) IDs() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnlockedStore хранит открытые достижения.
type UnlockedStore interface {
	// Load возвращает множество пользователя (пустое, если ничего не открыто).
	Load(ctx context.Context, userID int64) (UnlockedSet, error)

	// Save добавляет ID из set к сохранённым и возвращает итоговое множество.
	// Ранее сохранённые ID никогда не удаляются.
	Save(ctx context.Context, userID int64, set UnlockedSet) (UnlockedSet, error)
}

// LockKey возвращает ключ блокировки достижений пользователя.
func LockKey(userID int64) string {
	return "achievements:" + strconv.FormatInt(userID, 10)
}
