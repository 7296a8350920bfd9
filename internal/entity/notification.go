package entity

import (
	"sort"
	"time"
)

type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityWarning  Priority = "WARNING"
	PriorityNormal   Priority = "NORMAL"
	PriorityInfo     Priority = "INFO"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
)

// Notification is both the stored record and the broker/push payload.
// Message, Priority and Timestamp are set once at creation.
type Notification struct {
	ID        int64      `json:"id"`
	Message   string     `json:"message"`
	Priority  Priority   `json:"priority"`
	Timestamp time.Time  `json:"timestamp"`
	Status    Status     `json:"status"`
	Recipient *Recipient `json:"recipient,omitempty"`
}

// Recipient is the part of a User carried along with a notification.
type Recipient struct {
	ID                   int64  `json:"id"`
	Username             string `json:"username"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
}

type NotificationRequest struct {
	Message  string   `json:"message" binding:"required"`
	Priority Priority `json:"priority" binding:"required,oneof=CRITICAL WARNING NORMAL INFO"`
	Username string   `json:"username"`
}

type DashboardStats struct {
	TotalUsers         int64 `json:"total_users"`
	TotalNotifications int64 `json:"total_notifications"`
}

func (n *Notification) IsBroadcast() bool {
	return n.Recipient == nil
}

// Skipped reports whether the recipient opted out of pushes.
func (n *Notification) Skipped() bool {
	return n.Recipient != nil && !n.Recipient.NotificationsEnabled
}

// SortNewestFirst orders by timestamp, then by ID, both descending.
func SortNewestFirst(notifications []*Notification) {
	sort.Slice(notifications, func(i, j int) bool {
		a, b := notifications[i], notifications[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})
}
