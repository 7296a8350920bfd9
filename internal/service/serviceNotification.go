package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/internal/rabbitMQ"
	"github.com/ds124wfegd/notification-dispatcher/internal/rateLimiter"
	"github.com/ds124wfegd/notification-dispatcher/pkg/metrics"

	"github.com/sirupsen/logrus"
)

type notificationUseCase struct {
	repo    database.NotificationRepository
	users   database.UserRepository
	queue   rabbitMQ.Queue
	limiter rateLimiter.Limiter
	now     func() time.Time
}

func NewNotificationUseCase(
	repo database.NotificationRepository,
	users database.UserRepository,
	q rabbitMQ.Queue,
	limiter rateLimiter.Limiter,
) NotificationUseCase {
	return &notificationUseCase{
		repo:    repo,
		users:   users,
		queue:   q,
		limiter: limiter,
		now:     time.Now,
	}
}

// SendNotification admits, persists and publishes a notification. It returns
// the PENDING record without waiting for consumption.
func (uc *notificationUseCase) SendNotification(ctx context.Context, req *entity.NotificationRequest) (*entity.Notification, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message must not be blank", entity.ErrInvalidInput)
	}

	username := strings.TrimSpace(req.Username)
	key := rateLimiter.KeyFor(username)

	allowed, err := uc.limiter.Admit(ctx, key)
	if err != nil {
		return nil, err
	}
	if !allowed {
		metrics.RateLimited.Inc()
		return nil, entity.ErrRateLimited
	}

	var recipient *entity.Recipient
	if username != "" {
		user, err := uc.users.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, fmt.Errorf("%w: %s", entity.ErrUserNotFound, username)
		}
		recipient = user.AsRecipient()
	}

	notification := &entity.Notification{
		Message:   message,
		Priority:  req.Priority,
		Timestamp: uc.now(),
		Status:    entity.StatusPending,
		Recipient: recipient,
	}

	if err := uc.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	lane := entity.LaneFor(notification.Priority)
	if err := uc.queue.Publish(ctx, lane.RoutingKey(), notification); err != nil {
		return nil, fmt.Errorf("failed to publish notification %d: %w", notification.ID, err)
	}

	metrics.NotificationsSubmitted.WithLabelValues(string(lane)).Inc()
	logrus.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"priority":        notification.Priority,
		"lane":            lane,
		"recipient":       key,
	}).Info("Notification queued")

	return notification, nil
}

func (uc *notificationUseCase) GetAllNotifications(ctx context.Context) ([]*entity.Notification, error) {
	notifications, err := uc.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications from repository: %w", err)
	}
	return notifications, nil
}

// GetUserNotifications returns what a user sees in the feed: their targeted
// notifications plus every broadcast, newest first.
func (uc *notificationUseCase) GetUserNotifications(ctx context.Context, username string) ([]*entity.Notification, error) {
	user, err := uc.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrUserNotFound, username)
	}

	targeted, err := uc.repo.GetByRecipientID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}

	broadcasts, err := uc.repo.GetBroadcasts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast notifications: %w", err)
	}

	feed := append(targeted, broadcasts...)
	entity.SortNewestFirst(feed)
	return feed, nil
}

func (uc *notificationUseCase) DeleteNotification(ctx context.Context, id int64) error {
	return uc.repo.Delete(ctx, id)
}

func (uc *notificationUseCase) GetStats(ctx context.Context) (*entity.DashboardStats, error) {
	users, err := uc.users.Count(ctx)
	if err != nil {
		return nil, err
	}

	notifications, err := uc.repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &entity.DashboardStats{
		TotalUsers:         users,
		TotalNotifications: notifications,
	}, nil
}

// RepublishStale publishes again every PENDING notification older than
// olderThan. It stops at the first publish error.
func (uc *notificationUseCase) RepublishStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := uc.repo.GetStalePending(ctx, uc.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to get stale notifications: %w", err)
	}

	republished := 0
	for _, notification := range stale {
		lane := entity.LaneFor(notification.Priority)
		if err := uc.queue.Publish(ctx, lane.RoutingKey(), notification); err != nil {
			return republished, fmt.Errorf("failed to republish notification %d: %w", notification.ID, err)
		}
		republished++
	}

	if republished > 0 {
		logrus.WithField("count", republished).Info("Republished stale notifications")
	}
	return republished, nil
}
