// Package cache keeps read-mostly documents and counters in Redis.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"tucomercio/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// ProfileKey holds a cached user profile.
func ProfileKey(userID string) string { return "user:profile:" + userID }

// BusinessKey holds a cached public business document, keyed by id or slug.
func BusinessKey(idOrSlug string) string { return "business:detail:" + idOrSlug }

// Cache stores JSON documents with a TTL. Failures are logged and treated as misses
// so Postgres stays the source of truth.
type Cache struct {
	rdb redis.Cmdable
	log logger.Logger
}

func New(rdb redis.Cmdable, log logger.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

// GetJSON decodes the value at key into dst and reports whether it was found.
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.log.Warn("cache entry corrupt, dropping", map[string]interface{}{"key": key, "error": err.Error()})
		c.Delete(ctx, key)
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Error("cache encode failed", map[string]interface{}{"key": key, "error": err.Error()})
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidation failed", map[string]interface{}{"keys": keys, "error": err.Error()})
	}
}

// Load returns the cached value at key or calls fetch and caches its result.
func Load[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var v T
	if c.GetJSON(ctx, key, &v) {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	c.SetJSON(ctx, key, v, ttl)
	return v, nil
}
