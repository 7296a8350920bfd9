package entity

import "time"

type User struct {
	ID                   int64     `json:"id"`
	Username             string    `json:"username"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
}

type CreateUserRequest struct {
	Username             string `json:"username" binding:"required,max=100"`
	NotificationsEnabled *bool  `json:"notifications_enabled"`
}

type UpdatePreferencesRequest struct {
	NotificationsEnabled *bool `json:"notifications_enabled" binding:"required"`
}

func (u *User) AsRecipient() *Recipient {
	if u == nil {
		return nil
	}
	return &Recipient{
		ID:                   u.ID,
		Username:             u.Username,
		NotificationsEnabled: u.NotificationsEnabled,
	}
}
