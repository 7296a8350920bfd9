package entity

import "errors"

var (
	// Admission errors
	ErrRateLimited = errors.New("rate limit exceeded, please wait before sending another notification")

	// User errors
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")

	// Notification errors
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDeliveryFailed       = errors.New("delivery failed")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
)
