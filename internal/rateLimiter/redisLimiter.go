package rateLimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter shares admission state between instances. Each key is set with
// SET NX PX, so it exists exactly while the key's window is closed.
type RedisLimiter struct {
	client   *redis.Client
	interval time.Duration
	prefix   string
}

func NewRedisLimiter(client *redis.Client, interval time.Duration, prefix string) *RedisLimiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &RedisLimiter{
		client:   client,
		interval: interval,
		prefix:   prefix,
	}
}

func (l *RedisLimiter) Admit(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, time.Now().UnixMilli(), l.interval).Result()
	if err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}
	return ok, nil
}
