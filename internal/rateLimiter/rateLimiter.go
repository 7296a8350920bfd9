package rateLimiter

import (
	"context"
	"strings"
	"time"
)

const (
	// BroadcastKey is the admission key used when a request has no recipient.
	BroadcastKey = "GLOBAL_BROADCAST"

	DefaultInterval = 2000 * time.Millisecond
)

// Limiter enforces a minimum interval between accepted calls per key.
// A rejected call never moves the key's window.
type Limiter interface {
	Admit(ctx context.Context, key string) (bool, error)
}

// KeyFor returns the admission key for a recipient username.
func KeyFor(username string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return BroadcastKey
	}
	return username
}
