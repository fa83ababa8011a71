package realtime

import (
	"context"
	"strconv"
	"time"

	"tucomercio/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// Presence records which users are currently watching a topic on any instance.
// Each key is a sorted set of connection ids scored by their expiry, so one
// connection leaving does not hide the user's other connections. Members expire
// unless refreshed by the connection keepalive.
type Presence struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewPresence(rdb redis.Cmdable, ttl time.Duration) *Presence {
	return &Presence{rdb: rdb, ttl: ttl, now: time.Now}
}

func presenceKey(topic, userID string) string {
	return "presence:" + topic + ":" + userID
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Touch marks connID of userID as watching each topic for another TTL.
func (p *Presence) Touch(ctx context.Context, userID, connID string, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	now := p.now()
	expires := float64(now.Add(p.ttl).UnixMilli())
	pipe := p.rdb.Pipeline()
	for _, t := range topics {
		key := presenceKey(t, userID)
		pipe.ZRemRangeByScore(ctx, key, "-inf", score(now.Add(-time.Millisecond)))
		pipe.ZAdd(ctx, key, redis.Z{Score: expires, Member: connID})
		pipe.PExpire(ctx, key, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

// Leave drops connID only; other connections of the same user keep the topic.
func (p *Presence) Leave(ctx context.Context, userID, connID string, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	pipe := p.rdb.Pipeline()
	for _, t := range topics {
		pipe.ZRem(ctx, presenceKey(t, userID), connID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

// IsSubscribed reports whether any live connection of userID watches topic.
func (p *Presence) IsSubscribed(ctx context.Context, userID, topic string) (bool, error) {
	n, err := p.rdb.ZCount(ctx, presenceKey(topic, userID), score(p.now()), "+inf").Result()
	if err != nil {
		return false, errors.NewExternalServiceError("redis", err)
	}
	return n > 0, nil
}
