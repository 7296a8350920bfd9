package push

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisPusher publishes payloads to Redis so that every instance running a
// Relay can hand them to its own websocket clients.
type RedisPusher struct {
	client *redis.Client
	prefix string
}

func NewRedisPusher(client *redis.Client, prefix string) *RedisPusher {
	return &RedisPusher{client: client, prefix: prefix}
}

func (p *RedisPusher) Push(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, p.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", p.prefix+channel, err)
	}
	return nil
}

// Relay forwards payloads published under prefix into a local Hub.
type Relay struct {
	client *redis.Client
	prefix string
	hub    *Hub
}

func NewRelay(client *redis.Client, prefix string, hub *Hub) *Relay {
	return &Relay{client: client, prefix: prefix, hub: hub}
}

// Run blocks until ctx is done or the subscription fails.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s*: %w", r.prefix, err)
	}

	logrus.WithField("pattern", r.prefix+"*").Info("push: relay subscribed")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			channel := strings.TrimPrefix(msg.Channel, r.prefix)
			if err := r.hub.Push(ctx, channel, []byte(msg.Payload)); err != nil {
				logrus.WithError(err).WithField("channel", channel).Warn("push: relay delivery failed")
			}
		}
	}
}
