package bus

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/logger"
)

// RedisBus publishes and subscribes over Redis pub/sub.
type RedisBus struct {
	client *goredis.Client
	log    *zap.Logger
}

// NewRedisBus creates a RedisBus on a shared client.
func NewRedisBus(client *goredis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{client: client, log: logger.OrNop(log).Named("bus.redis")}
}

// Publish sends payload to every subscriber of topic.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a Source for one pub/sub channel.
func (b *RedisBus) Subscribe(topic string) Source {
	return &redisSource{bus: b, topic: topic}
}

type redisSource struct {
	bus   *RedisBus
	topic string
}

// Run subscribes and hands every message to handle. go-redis reconnects the
// subscription on its own.
func (s *redisSource) Run(ctx context.Context, handle Handler) error {
	sub := s.bus.client.Subscribe(ctx, s.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe %s: %w", s.topic, err)
	}
	s.bus.log.Info("subscribed", zap.String("topic", s.topic))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle(ctx, []byte(msg.Payload))
		}
	}
}
