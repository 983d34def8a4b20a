package progress

import (
	"context"
	"strconv"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATOR INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store хранит по одной записи прогресса на пользователя.
type Store interface {
	// Load возвращает запись пользователя.
	// found == false означает, что записи ещё нет; это не ошибка.
	Load(ctx context.Context, userID int64) (rec *Record, found bool, err error)

	// Save атомарно сохраняет запись целиком и возвращает сохранённую версию.
	// Если сохранённая запись новее rec.Version, возвращает ErrProgressConflict.
	Save(ctx context.Context, rec *Record) (*Record, error)
}

// UserLookup проверяет существование пользователя.
type UserLookup interface {
	// Exists возвращает false без ошибки, если пользователя нет.
	Exists(ctx context.Context, userID int64) (bool, error)
}

// Locker сериализует операции над одним ключом.
type Locker interface {
	// Lock блокирует ключ до вызова unlock или истечения ctx.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockKey возвращает ключ блокировки записи прогресса.
func LockKey(userID int64) string {
	return "progress:" + strconv.FormatInt(userID, 10)
}
