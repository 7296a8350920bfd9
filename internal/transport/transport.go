package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/internal/push"
	"github.com/ds124wfegd/notification-dispatcher/internal/service"
	"github.com/ds124wfegd/notification-dispatcher/internal/transport/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func() error

func InitRoutes(
	notifications service.NotificationUseCase,
	users service.UserUseCase,
	hub *push.Hub,
	health HealthChecker,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(), middleware.Metrics())

	notificationHandler := NewNotificationHandler(notifications)
	userHandler := NewUserHandler(users)
	pushHandler := NewPushHandler(hub)

	api := router.Group("/api")
	{
		n := api.Group("/notifications")
		n.POST("/send", notificationHandler.SendNotification)
		n.GET("", notificationHandler.GetNotifications)
		n.GET("/stats", notificationHandler.GetStats)
		n.GET("/user/:username", notificationHandler.GetUserNotifications)
		n.DELETE("/:id", notificationHandler.DeleteNotification)

		u := api.Group("/users")
		u.POST("", userHandler.CreateUser)
		u.PUT("/:username/preferences", userHandler.UpdatePreferences)
	}

	router.GET("/ws", pushHandler.Connect)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "unhealthy",
					"service":   "notification-dispatcher",
					"error":     err.Error(),
					"timestamp": time.Now().Format(time.RFC3339),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "notification-dispatcher",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(consoleHTML))
	})

	return router
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, entity.ErrUserNotFound), errors.Is(err, entity.ErrNotificationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrUserAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, entity.ErrInvalidInput):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
