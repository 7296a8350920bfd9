package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/ds124wfegd/notification-dispatcher/internal/database/memory"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/internal/push"
	"github.com/ds124wfegd/notification-dispatcher/internal/rabbitMQ"
	"github.com/ds124wfegd/notification-dispatcher/internal/rateLimiter"
	"github.com/ds124wfegd/notification-dispatcher/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopQueue struct {
	published int
}

func (q *nopQueue) Publish(ctx context.Context, routingKey string, message interface{}) error {
	q.published++
	return nil
}

func (q *nopQueue) Consume(ctx context.Context, queueName string, concurrency int, handler rabbitMQ.Handler) error {
	return nil
}

func (q *nopQueue) Close() error { return nil }

func setupRouter(t *testing.T, health HealthChecker) (*gin.Engine, *nopQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	notifications := memory.NewNotificationRepository()
	users := memory.NewUserRepository()
	queue := &nopQueue{}
	limiter := rateLimiter.NewMemoryLimiter(rateLimiter.DefaultInterval)

	hub := push.NewHub()
	t.Cleanup(hub.Close)

	router := InitRoutes(
		service.NewNotificationUseCase(notifications, users, queue, limiter),
		service.NewUserUseCase(users),
		hub,
		health,
	)
	return router, queue
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestSendNotificationEndpoint(t *testing.T) {
	router, queue := setupRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/notifications/send", map[string]string{
		"message":  "Server down",
		"priority": "CRITICAL",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var n entity.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, entity.StatusPending, n.Status)
	assert.Equal(t, "Server down", n.Message)
	assert.Nil(t, n.Recipient)
	assert.Equal(t, 1, queue.published)

	rec = doJSON(t, router, http.MethodPost, "/api/notifications/send", map[string]string{
		"message":  "Again",
		"priority": "INFO",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decodeError(t, rec), "rate limit")
}

func TestSendNotificationValidation(t *testing.T) {
	router, _ := setupRouter(t, nil)

	tests := []struct {
		name string
		body map[string]string
		code int
	}{
		{name: "missing message", body: map[string]string{"priority": "NORMAL"}, code: http.StatusBadRequest},
		{name: "unknown priority", body: map[string]string{"message": "x", "priority": "URGENT"}, code: http.StatusBadRequest},
		{name: "unknown recipient", body: map[string]string{"message": "x", "priority": "NORMAL", "username": "ghost"}, code: http.StatusNotFound},
		{name: "blank message", body: map[string]string{"message": "   ", "priority": "NORMAL"}, code: http.StatusBadRequest},
		{name: "broadcast key as recipient", body: map[string]string{"message": "x", "priority": "NORMAL", "username": "GLOBAL_BROADCAST"}, code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/notifications/send", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestUserEndpoints(t *testing.T) {
	router, _ := setupRouter(t, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var user entity.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.NotificationsEnabled)

	rec = doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/users/alice/preferences", map[string]any{"notifications_enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.False(t, user.NotificationsEnabled)

	rec = doJSON(t, router, http.MethodPut, "/api/users/ghost/preferences", map[string]any{"notifications_enabled": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/api/users/alice/preferences", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotificationQueries(t *testing.T) {
	router, _ := setupRouter(t, nil)

	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/users", map[string]any{"username": "alice"}).Code)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/notifications/send", map[string]string{
		"message": "hi alice", "priority": "NORMAL", "username": "alice",
	}).Code)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/api/notifications/send", map[string]string{
		"message": "everyone", "priority": "WARNING",
	}).Code)

	rec := doJSON(t, router, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Notifications []entity.Notification `json:"notifications"`
		Count         int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	rec = doJSON(t, router, http.MethodGet, "/api/notifications/user/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	rec = doJSON(t, router, http.MethodGet, "/api/notifications/user/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/notifications/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats entity.DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.TotalNotifications)

	id := list.Notifications[0].ID
	rec = doJSON(t, router, http.MethodDelete, "/api/notifications/"+strconv.FormatInt(id, 10), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/notifications/"+strconv.FormatInt(id, 10), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/notifications/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t, func() error { return nil })
	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodGet, "/health", nil).Code)

	router, _ = setupRouter(t, func() error { return errors.New("RabbitMQ connection is closed") })
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, router, http.MethodGet, "/health", nil).Code)
}

func TestConsoleAndMetrics(t *testing.T) {
	router, _ := setupRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Notification Dispatcher")

	rec = doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notification_dispatcher_api_latency_seconds")
}
