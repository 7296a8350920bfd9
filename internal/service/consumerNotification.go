package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/internal/rabbitMQ"
	"github.com/ds124wfegd/notification-dispatcher/pkg/metrics"

	"github.com/sirupsen/logrus"
)

const (
	outcomeDelivered = "delivered"
	outcomeSkipped   = "skipped"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeFailed    = "failed"
)

type NotificationConsumer struct {
	repo       database.NotificationRepository
	deliveries database.DeliveryRepository
	dispatcher *Dispatcher
	dedupeTTL  time.Duration
}

// NewNotificationConsumer builds the consumer. deliveries may be nil, in which
// case every redelivery pushes again.
func NewNotificationConsumer(
	repo database.NotificationRepository,
	deliveries database.DeliveryRepository,
	dispatcher *Dispatcher,
	dedupeTTL time.Duration,
) *NotificationConsumer {
	return &NotificationConsumer{
		repo:       repo,
		deliveries: deliveries,
		dispatcher: dispatcher,
		dedupeTTL:  dedupeTTL,
	}
}

// Handler decodes broker messages of one lane and processes them.
func (c *NotificationConsumer) Handler(lane entity.Lane) rabbitMQ.Handler {
	return func(ctx context.Context, body []byte) error {
		var n entity.Notification
		if err := json.Unmarshal(body, &n); err != nil {
			metrics.NotificationsProcessed.WithLabelValues(string(lane), outcomeDropped).Inc()
			return fmt.Errorf("%w: %v", rabbitMQ.ErrUnprocessable, err)
		}
		if n.ID == 0 {
			metrics.NotificationsProcessed.WithLabelValues(string(lane), outcomeDropped).Inc()
			return fmt.Errorf("%w: notification without id", rabbitMQ.ErrUnprocessable)
		}

		outcome, err := c.process(ctx, &n)
		metrics.NotificationsProcessed.WithLabelValues(string(lane), outcome).Inc()

		log := logrus.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"priority":        n.Priority,
			"lane":            lane,
			"outcome":         outcome,
		})
		if err != nil {
			log.WithError(err).Error("Failed to process notification")
			return err
		}
		log.Info("Notification processed")
		return nil
	}
}

// Process marks n SENT and pushes it unless the recipient opted out.
// It can be called again for the same notification.
func (c *NotificationConsumer) Process(ctx context.Context, n *entity.Notification) error {
	_, err := c.process(ctx, n)
	return err
}

func (c *NotificationConsumer) process(ctx context.Context, n *entity.Notification) (string, error) {
	if err := c.repo.MarkSent(ctx, n.ID); err != nil {
		if errors.Is(err, entity.ErrNotificationNotFound) {
			logrus.WithField("notification_id", n.ID).Warn("Notification no longer exists, dropping message")
			return outcomeDropped, nil
		}
		return outcomeFailed, err
	}
	n.Status = entity.StatusSent

	if n.Skipped() {
		logrus.WithField("username", n.Recipient.Username).Info("Notifications disabled, skipping push")
		return outcomeSkipped, nil
	}

	claimed, duplicate := c.claim(ctx, n.ID)
	if duplicate {
		return outcomeDuplicate, nil
	}

	// SENT is kept when the push fails.
	if err := c.dispatcher.Deliver(ctx, n); err != nil {
		if claimed {
			if relErr := c.deliveries.Release(ctx, n.ID); relErr != nil {
				logrus.WithError(relErr).WithField("notification_id", n.ID).Warn("Failed to release delivery record")
			}
		}
		return outcomeFailed, err
	}

	return outcomeDelivered, nil
}

// claim records the delivery before the push so concurrent redeliveries of
// the same id push once. A failing store never blocks the push.
func (c *NotificationConsumer) claim(ctx context.Context, id int64) (claimed, duplicate bool) {
	if c.deliveries == nil {
		return false, false
	}

	ok, err := c.deliveries.Claim(ctx, id, c.dedupeTTL)
	if err != nil {
		logrus.WithError(err).WithField("notification_id", id).Warn("Failed to claim delivery record")
		return false, false
	}
	return ok, !ok
}
