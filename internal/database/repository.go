package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
)

type NotificationRepository interface {
	// Create assigns the ID.
	Create(ctx context.Context, notification *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	// MarkSent is a no-op for a record that is already SENT.
	MarkSent(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error

	// Newest first
	GetAll(ctx context.Context) ([]*entity.Notification, error)
	GetByRecipientID(ctx context.Context, userID int64) ([]*entity.Notification, error)
	GetBroadcasts(ctx context.Context) ([]*entity.Notification, error)

	GetStalePending(ctx context.Context, olderThan time.Time) ([]*entity.Notification, error)
	Count(ctx context.Context) (int64, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	// GetByUsername returns nil, nil when the user does not exist.
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	UpdatePreferences(ctx context.Context, username string, enabled bool) (*entity.User, error)
	Count(ctx context.Context) (int64, error)
}

// DeliveryRepository remembers which notifications were already pushed.
type DeliveryRepository interface {
	// Claim records the delivery unless it is already recorded and reports
	// whether the caller got it. Check and record are one atomic step.
	Claim(ctx context.Context, notificationID int64, ttl time.Duration) (bool, error)
	// Release drops a claim after a failed push so a redelivery can push again.
	Release(ctx context.Context, notificationID int64) error
	IsDelivered(ctx context.Context, notificationID int64) (bool, error)
}
