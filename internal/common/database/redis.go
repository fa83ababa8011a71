package database

import (
	"context"
	"time"

	"tucomercio/internal/common/config"
	"tucomercio/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// RedisClient is shared by the cache, view counters, presence and the realtime broker.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis opens a pool whose connections carry clientName, so CLIENT LIST tells
// the API and the worker manager apart. The broker's subscription holds one
// connection for the life of the process.
func NewRedis(cfg config.RedisConfig, clientName string) *RedisClient {
	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
	})}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
