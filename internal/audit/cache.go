package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// kvStore is the minimal Redis surface CachedStore needs, letting tests
// substitute an in-memory fake instead of a live Redis server.
type kvStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

// cacheTTL is shorter than the controller's 5-second poll interval, so a
// cached aggregate is never more than one tick stale. A single controller
// polling at that interval finds the entry expired on each tick and queries
// Postgres every time.
const cacheTTL = 4 * time.Second

const (
	avgDurationKey = "audit:avg_duration_ms"
	countKey       = "audit:count_1m"
)

// CachedStore wraps a Store with a short-TTL Redis read-through cache in
// front of AvgDurationMs and CountSince. On any Redis error it falls back
// to querying Store directly; Redis is an optimization, never a dependency
// the controller can be blocked by.
type CachedStore struct {
	store  *Store
	redis  kvStore
	logger *zap.Logger
}

// NewCachedStore wraps store with a Redis client.
func NewCachedStore(store *Store, redisClient *redis.Client, logger *zap.Logger) *CachedStore {
	return &CachedStore{store: store, redis: redisClient, logger: logger}
}

// AvgDurationMs returns the cached value if fresh, else queries Store and
// repopulates the cache.
func (c *CachedStore) AvgDurationMs(ctx context.Context, window time.Duration) (float64, error) {
	if cached, ok := c.getFloat(ctx, avgDurationKey); ok {
		return cached, nil
	}

	value, err := c.store.AvgDurationMs(ctx, window)
	if err != nil {
		return 0, err
	}

	c.setFloat(ctx, avgDurationKey, value)
	return value, nil
}

// CountSince returns the cached value if fresh, else queries Store and
// repopulates the cache.
func (c *CachedStore) CountSince(ctx context.Context, window time.Duration) (int64, error) {
	if cached, ok := c.getInt(ctx, countKey); ok {
		return cached, nil
	}

	value, err := c.store.CountSince(ctx, window)
	if err != nil {
		return 0, err
	}

	c.setInt(ctx, countKey, value)
	return value, nil
}

func (c *CachedStore) getFloat(ctx context.Context, key string) (float64, bool) {
	raw, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis read failed, falling back to postgres", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func (c *CachedStore) setFloat(ctx context.Context, key string, value float64) {
	if err := c.redis.Set(ctx, key, strconv.FormatFloat(value, 'f', -1, 64), cacheTTL).Err(); err != nil {
		c.logger.Warn("redis write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedStore) getInt(ctx context.Context, key string) (int64, bool) {
	raw, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis read failed, falling back to postgres", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func (c *CachedStore) setInt(ctx context.Context, key string, value int64) {
	if err := c.redis.Set(ctx, key, strconv.FormatInt(value, 10), cacheTTL).Err(); err != nil {
		c.logger.Warn("redis write failed", zap.String("key", key), zap.Error(err))
	}
}
