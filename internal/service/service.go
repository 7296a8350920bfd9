package service

import (
	"context"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
)

type NotificationUseCase interface {
	SendNotification(ctx context.Context, req *entity.NotificationRequest) (*entity.Notification, error)
	GetAllNotifications(ctx context.Context) ([]*entity.Notification, error)
	GetUserNotifications(ctx context.Context, username string) ([]*entity.Notification, error)
	DeleteNotification(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (*entity.DashboardStats, error)
	RepublishStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type UserUseCase interface {
	CreateUser(ctx context.Context, req *entity.CreateUserRequest) (*entity.User, error)
	UpdatePreferences(ctx context.Context, username string, req *entity.UpdatePreferencesRequest) (*entity.User, error)
}

// Pusher hands a payload to every subscriber of a channel.
type Pusher interface {
	Push(ctx context.Context, channel string, payload []byte) error
}
