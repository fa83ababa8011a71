// Package realtime pushes change events to websocket subscribers. Events are published
// to Redis so every API instance delivers them to its own connections.
package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "rt:"

// Broker publishes events on Redis pub/sub and relays them to the local hub.
type Broker struct {
	rdb *redis.Client
	log logger.Logger
}

func NewBroker(rdb *redis.Client, log logger.Logger) *Broker {
	return &Broker{rdb: rdb, log: log}
}

// Publish sends ev to every subscriber of ev.Topic on any instance.
func (b *Broker) Publish(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.NewInternalError(err)
	}
	if err := b.rdb.Publish(ctx, channelPrefix+ev.Topic, payload).Err(); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	return nil
}

// Run relays published events to dispatch until ctx is done.
func (b *Broker) Run(ctx context.Context, dispatch func(topic string, payload []byte)) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.NewExternalServiceError("redis", err)
	}
	b.log.Info("realtime broker subscribed", map[string]interface{}{"pattern": channelPrefix + "*"})

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			dispatch(strings.TrimPrefix(msg.Channel, channelPrefix), []byte(msg.Payload))
		}
	}
}
