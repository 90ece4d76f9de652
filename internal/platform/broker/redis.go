package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on Redis pub/sub so fan-out reaches
// subscribers on every service instance, not only the one that accepted the
// write.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker constructs a RedisBroker.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends payload to every current subscriber of topic. A topic with
// no subscribers is not an error.
func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("platform/broker: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe attaches to topic. The returned subscription delivers payloads
// until closed.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	// Force the SUBSCRIBE round trip so a failed attach surfaces here
	// instead of as a silently empty channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("platform/broker: subscribe %s: %w", topic, err)
	}

	sub := &redisSubscription{pubsub: pubsub, ch: make(chan []byte, 32)}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan []byte
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		s.ch <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) C() <-chan []byte { return s.ch }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }
