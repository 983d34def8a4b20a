package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/pkg/logger"
)

// valueCache is the subset of Cache used by ProgressCache.
type valueCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ProgressCache is a read-through cache in front of a progress.Store.
// Cache failures are logged and fall back to the store.
type ProgressCache struct {
	store progress.Store
	cache valueCache
	ttl   time.Duration
	log   *logger.Logger
}

// NewProgressCache wraps store.
func NewProgressCache(store progress.Store, cache valueCache, ttl time.Duration, log *logger.Logger) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgressCache
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressCache{
		store: store,
		cache: cache,
		ttl:   ttl,
		log:   log.With(logger.Component("progress_cache")),
	}
}

// Load returns the cached record or loads it from the store.
func (c *ProgressCache) Load(ctx context.Context, userID int64) (*progress.Record, bool, error) {
	key := ProgressKey(userID)

	var rec progress.Record
	err := c.cache.Get(ctx, key, &rec)
	switch {
	case err == nil:
		if rec.CompletedLessons == nil {
			rec.CompletedLessons = progress.NewLessonSet()
		}
		return &rec, true, nil
	case !errors.Is(err, ErrCacheMiss):
		c.log.Warn("progress cache read failed", logger.UserID(userID), logger.Err(err))
	}

	loaded, found, err := c.store.Load(ctx, userID)
	if err != nil || !found {
		return loaded, found, err
	}
	c.put(ctx, loaded)
	return loaded, true, nil
}

// Save writes through to the store and refreshes the cached copy.
func (c *ProgressCache) Save(ctx context.Context, rec *progress.Record) (*progress.Record, error) {
	saved, err := c.store.Save(ctx, rec)
	if err != nil {
		// the store may or may not have applied the write
		if delErr := c.cache.Delete(ctx, ProgressKey(rec.UserID)); delErr != nil {
			c.log.Warn("progress cache invalidate failed", logger.UserID(rec.UserID), logger.Err(delErr))
		}
		return nil, err
	}
	c.put(ctx, saved)
	return saved, nil
}

func (c *ProgressCache) put(ctx context.Context, rec *progress.Record) {
	if err := c.cache.Set(ctx, ProgressKey(rec.UserID), rec, c.ttl); err != nil {
		c.log.Warn("progress cache write failed", logger.UserID(rec.UserID), logger.Err(err))
	}
}

// Evict drops the cached record of userID.
func (c *ProgressCache) Evict(ctx context.Context, userID int64) error {
	return c.cache.Delete(ctx, ProgressKey(userID))
}
