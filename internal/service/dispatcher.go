package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/pkg/metrics"
)

const (
	PublicChannel     = "public"
	userChannelPrefix = "user/"
)

// ChannelFor returns user/{username} for a targeted notification and public otherwise.
func ChannelFor(n *entity.Notification) string {
	if n.Recipient != nil {
		return userChannelPrefix + n.Recipient.Username
	}
	return PublicChannel
}

// UserChannel is the channel a connected user receives targeted pushes on.
func UserChannel(username string) string {
	return userChannelPrefix + username
}

type Dispatcher struct {
	pusher Pusher
}

func NewDispatcher(pusher Pusher) *Dispatcher {
	return &Dispatcher{pusher: pusher}
}

// Deliver pushes the JSON form of n. The transport gives no receipt, so a nil
// error only means the payload was handed over.
func (d *Dispatcher) Deliver(ctx context.Context, n *entity.Notification) error {
	channel := ChannelFor(n)
	target := "user"
	if n.IsBroadcast() {
		target = "public"
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: failed to encode notification %d: %w", entity.ErrDeliveryFailed, n.ID, err)
	}

	if err := d.pusher.Push(ctx, channel, payload); err != nil {
		metrics.Pushes.WithLabelValues(target, "failure").Inc()
		return fmt.Errorf("%w: channel %s: %w", entity.ErrDeliveryFailed, channel, err)
	}

	metrics.Pushes.WithLabelValues(target, "success").Inc()
	return nil
}
