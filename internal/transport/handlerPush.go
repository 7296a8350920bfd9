package transport

import (
	"net/http"
	"strings"

	"github.com/ds124wfegd/notification-dispatcher/internal/push"
	"github.com/ds124wfegd/notification-dispatcher/internal/service"

	"github.com/gin-gonic/gin"
)

type PushHandler struct {
	hub *push.Hub
}

func NewPushHandler(hub *push.Hub) *PushHandler {
	return &PushHandler{hub: hub}
}

// Connect subscribes a websocket client to the public channel and, when a
// username is given, to that user's channel.
func (h *PushHandler) Connect(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push transport unavailable"})
		return
	}

	username := strings.TrimSpace(c.Query("username"))
	channels := []string{service.PublicChannel}
	if username != "" {
		channels = append(channels, service.UserChannel(username))
	}

	h.hub.Serve(username, channels, c.Writer, c.Request)
}
