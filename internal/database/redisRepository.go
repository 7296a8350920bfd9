package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type redisDeliveryRepository struct {
	client *redis.Client
}

func NewRedisDeliveryRepository(client *redis.Client) DeliveryRepository {
	return &redisDeliveryRepository{client: client}
}

func deliveredKey(id int64) string {
	return fmt.Sprintf("delivered:%d", id)
}

func (r *redisDeliveryRepository) Claim(ctx context.Context, notificationID int64, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, deliveredKey(notificationID), time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery of notification %d: %w", notificationID, err)
	}
	return ok, nil
}

func (r *redisDeliveryRepository) Release(ctx context.Context, notificationID int64) error {
	if err := r.client.Del(ctx, deliveredKey(notificationID)).Err(); err != nil {
		return fmt.Errorf("failed to release delivery of notification %d: %w", notificationID, err)
	}
	return nil
}

func (r *redisDeliveryRepository) IsDelivered(ctx context.Context, notificationID int64) (bool, error) {
	n, err := r.client.Exists(ctx, deliveredKey(notificationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery of notification %d: %w", notificationID, err)
	}
	return n > 0, nil
}
