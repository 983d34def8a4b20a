package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/logger"
	"github.com/alem-hub/learning-progress/pkg/retry"
)

var errLockHeld = errors.New("lock held by another owner")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements progress.Locker across processes.
// A lock expires after ttl if its holder dies without releasing it.
type Locker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewLocker creates a Locker.
func NewLocker(client redis.UniversalClient, ttl time.Duration, log *logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Locker{
		client:  client,
		ttl:     ttl,
		retrier: retry.LockRetrier(1000),
		log:     log.With(logger.Component("redis_locker")),
	}
}

// Lock acquires key, polling until ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.Retryable(errLockHeld)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errLockHeld) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, shared.WrapError("lock", "Lock", shared.ErrLockNotAcquired, "lock "+key+" not acquired", err)
		}
		return nil, shared.StoreError("lock", "Lock", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}, nil
}

func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		l.log.Warn("failed to release lock", logger.String("key", redisKey), logger.Err(err))
	}
}
