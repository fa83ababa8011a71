package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"tucomercio/internal/common/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	pendingViewsKey  = "views:pending"
	flushingViewsKey = "views:flushing"
	flushLockKey     = "views:flush-lock"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ViewCounter buffers business profile views in a Redis hash until they are flushed to Postgres.
type ViewCounter struct {
	rdb redis.Cmdable
}

func NewViewCounter(rdb redis.Cmdable) *ViewCounter {
	return &ViewCounter{rdb: rdb}
}

func (v *ViewCounter) Incr(ctx context.Context, businessID string) error {
	if err := v.rdb.HIncrBy(ctx, pendingViewsKey, businessID, 1).Err(); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

// Drain moves pending counts aside and returns them. A batch left over by a failed
// flush is returned again before new counts are taken. Call Ack once the batch is stored.
func (v *ViewCounter) Drain(ctx context.Context) (map[string]int64, error) {
	if err := v.rdb.RenameNX(ctx, pendingViewsKey, flushingViewsKey).Err(); err != nil && !isNoSuchKey(err) {
		return nil, errors.NewExternalServiceError("redis", err)
	}

	raw, err := v.rdb.HGetAll(ctx, flushingViewsKey).Result()
	if err != nil {
		return nil, errors.NewExternalServiceError("redis", err)
	}
	out := make(map[string]int64, len(raw))
	for id, s := range raw {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		out[id] = n
	}
	return out, nil
}

// Ack discards the drained batch.
func (v *ViewCounter) Ack(ctx context.Context) error {
	if err := v.rdb.Del(ctx, flushingViewsKey).Err(); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

// Lock claims the drain and ack cycle for ttl across all instances. ok is false
// while another flusher holds it.
func (v *ViewCounter) Lock(ctx context.Context, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = v.rdb.SetNX(ctx, flushLockKey, token, ttl).Result()
	if err != nil {
		return "", false, errors.NewExternalServiceError("redis", err)
	}
	return token, ok, nil
}

// Unlock releases the claim if token still holds it.
func (v *ViewCounter) Unlock(ctx context.Context, token string) error {
	if err := unlockScript.Run(ctx, v.rdb, []string{flushLockKey}, token).Err(); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return strings.Contains(err.Error(), "no such key")
}
