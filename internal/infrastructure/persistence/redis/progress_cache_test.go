package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

// mapCache stores JSON like Cache does.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet error
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet != nil {
		return c.failGet
	}
	raw, ok := c.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

// countingStore keeps records by user id and counts loads.
type countingStore struct {
	mu      sync.Mutex
	records map[int64]*progress.Record
	loads   int
	saveErr error
}

func (s *countingStore) Load(_ context.Context, userID int64) (*progress.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	rec, ok := s.records[userID]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *countingStore) Save(_ context.Context, rec *progress.Record) (*progress.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.records[rec.UserID] = rec.Clone()
	return rec.Clone(), nil
}

func sampleRecord(t *testing.T) *progress.Record {
	t.Helper()
	rec, err := progress.NewRecord(5)
	require.NoError(t, err)
	_, _ = rec.CompleteLesson("intro")
	rec.RecordStudyDay(timeutil.NewDate(2024, time.January, 2))
	rec.AddStudyTime(30)
	return rec
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "progress:42", ProgressKey(42))
	assert.Equal(t, "lock:achievements:7", LockKey("achievements:7"))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

func TestProgressCache_ReadThrough(t *testing.T) {
	store := &countingStore{records: map[int64]*progress.Record{}}
	cache := newMapCache()
	pc := NewProgressCache(store, cache, time.Minute, nil)
	ctx := context.Background()

	_, err := store.Save(ctx, sampleRecord(t))
	require.NoError(t, err)

	first, found, err := pc.Load(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)
	second, found, err := pc.Load(ctx, 5)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, 1, store.loads, "second load is served from cache")
	assert.Equal(t, first.Snapshot(), second.Snapshot())
	assert.True(t, second.CompletedLessons.Contains("intro"))
	require.NotNil(t, second.LastStudiedDate)
	assert.Equal(t, "2024-01-02", second.LastStudiedDate.String())
}

func TestProgressCache_MissingRecordNotCached(t *testing.T) {
	store := &countingStore{records: map[int64]*progress.Record{}}
	pc := NewProgressCache(store, newMapCache(), time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, found, err := pc.Load(context.Background(), 9)
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.Equal(t, 2, store.loads)
}

func TestProgressCache_SaveRefreshes(t *testing.T) {
	store := &countingStore{records: map[int64]*progress.Record{}}
	pc := NewProgressCache(store, newMapCache(), time.Minute, nil)
	ctx := context.Background()

	rec := sampleRecord(t)
	_, err := pc.Save(ctx, rec)
	require.NoError(t, err)

	rec.AddStudyTime(15)
	_, err = pc.Save(ctx, rec)
	require.NoError(t, err)

	got, _, err := pc.Load(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 45, got.TotalStudyTime)
	assert.Zero(t, store.loads)
}

func TestProgressCache_SaveFailureInvalidates(t *testing.T) {
	store := &countingStore{records: map[int64]*progress.Record{}}
	cache := newMapCache()
	pc := NewProgressCache(store, cache, time.Minute, nil)
	ctx := context.Background()

	_, err := pc.Save(ctx, sampleRecord(t))
	require.NoError(t, err)

	store.saveErr = errors.New("connection refused")
	_, err = pc.Save(ctx, sampleRecord(t))
	require.Error(t, err)

	_, ok := cache.data[ProgressKey(5)]
	assert.False(t, ok)
}

func TestProgressCache_CacheErrorFallsBack(t *testing.T) {
	store := &countingStore{records: map[int64]*progress.Record{}}
	cache := newMapCache()
	cache.failGet = errors.New("i/o timeout")
	pc := NewProgressCache(store, cache, time.Minute, nil)

	_, err := store.Save(context.Background(), sampleRecord(t))
	require.NoError(t, err)

	rec, found, err := pc.Load(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 30, rec.TotalStudyTime)
}

func TestProgressCache_Evict(t *testing.T) {
	store := &countingStore{records: map[int64]*progress.Record{}}
	cache := newMapCache()
	pc := NewProgressCache(store, cache, time.Minute, nil)
	ctx := context.Background()

	_, err := pc.Save(ctx, sampleRecord(t))
	require.NoError(t, err)
	delete(store.records, 5)

	require.NoError(t, pc.Evict(ctx, 5))

	_, found, err := pc.Load(ctx, 5)
	require.NoError(t, err)
	assert.False(t, found, "evicted record is not served after the store dropped it")
	assert.Equal(t, 1, store.loads)
}
