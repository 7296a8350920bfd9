package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/database/memory"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/internal/rabbitMQ"
	"github.com/ds124wfegd/notification-dispatcher/internal/rateLimiter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMsg struct {
	routingKey string
	body       []byte
}

type fakeQueue struct {
	mu         sync.Mutex
	messages   []publishedMsg
	publishErr error
}

func (q *fakeQueue) Publish(ctx context.Context, routingKey string, message interface{}) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, publishedMsg{routingKey: routingKey, body: body})
	return nil
}

func (q *fakeQueue) Consume(ctx context.Context, queueName string, concurrency int, handler rabbitMQ.Handler) error {
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) published() []publishedMsg {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]publishedMsg(nil), q.messages...)
}

type pushed struct {
	channel string
	payload []byte
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []pushed
	err    error
}

func (p *fakePusher) Push(ctx context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushes = append(p.pushes, pushed{channel: channel, payload: payload})
	return nil
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func (p *fakePusher) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type pipeline struct {
	notifications database.NotificationRepository
	users         database.UserRepository
	deliveries    database.DeliveryRepository
	queue         *fakeQueue
	pusher        *fakePusher
	clock         time.Time
	service       NotificationUseCase
	userService   UserUseCase
	consumer      *NotificationConsumer
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	p := &pipeline{
		notifications: memory.NewNotificationRepository(),
		users:         memory.NewUserRepository(),
		deliveries:    memory.NewDeliveryRepository(),
		queue:         &fakeQueue{},
		pusher:        &fakePusher{},
		clock:         time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	limiter := rateLimiter.NewMemoryLimiter(rateLimiter.DefaultInterval, rateLimiter.WithClock(func() time.Time { return p.clock }))
	uc := NewNotificationUseCase(p.notifications, p.users, p.queue, limiter).(*notificationUseCase)
	uc.now = func() time.Time { return p.clock }

	p.service = uc
	p.userService = NewUserUseCase(p.users)
	p.consumer = NewNotificationConsumer(p.notifications, p.deliveries, NewDispatcher(p.pusher), time.Hour)
	return p
}

func (p *pipeline) advance(d time.Duration) {
	p.clock = p.clock.Add(d)
}

func (p *pipeline) createUser(t *testing.T, username string, enabled bool) *entity.User {
	t.Helper()
	user, err := p.userService.CreateUser(context.Background(), &entity.CreateUserRequest{
		Username:             username,
		NotificationsEnabled: &enabled,
	})
	require.NoError(t, err)
	return user
}

// deliver feeds every published message to the consumer handler of its lane.
func (p *pipeline) deliver(t *testing.T) []error {
	t.Helper()
	var errs []error
	for _, msg := range p.queue.published() {
		errs = append(errs, p.consumer.Handler(entity.Lane(msg.routingKey))(context.Background(), msg.body))
	}
	return errs
}

func TestBroadcastCriticalNotification(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{
		Message:  "Server down",
		Priority: entity.PriorityCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, n.Status)
	assert.Nil(t, n.Recipient)
	assert.NotZero(t, n.ID)

	stored, err := p.notifications.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, stored.Status)

	msgs := p.queue.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "critical", msgs[0].routingKey)

	for _, err := range p.deliver(t) {
		require.NoError(t, err)
	}

	stored, err = p.notifications.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, stored.Status)

	require.Len(t, p.pusher.pushes, 1)
	assert.Equal(t, PublicChannel, p.pusher.pushes[0].channel)

	var payload entity.Notification
	require.NoError(t, json.Unmarshal(p.pusher.pushes[0].payload, &payload))
	assert.Equal(t, "Server down", payload.Message)
	assert.Equal(t, entity.StatusSent, payload.Status)
}

func TestSameUserRateLimited(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.createUser(t, "alice", true)

	req := &entity.NotificationRequest{Message: "Hi", Priority: entity.PriorityNormal, Username: "alice"}

	_, err := p.service.SendNotification(ctx, req)
	require.NoError(t, err)

	p.advance(time.Second)
	_, err = p.service.SendNotification(ctx, req)
	assert.ErrorIs(t, err, entity.ErrRateLimited)

	// a different key is not affected
	_, err = p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "all", Priority: entity.PriorityInfo})
	require.NoError(t, err)

	p.advance(time.Second)
	_, err = p.service.SendNotification(ctx, req)
	require.NoError(t, err)

	assert.Len(t, p.queue.published(), 3)
}

func TestUnknownRecipient(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	_, err := p.service.SendNotification(ctx, &entity.NotificationRequest{
		Message:  "Hello",
		Priority: entity.PriorityNormal,
		Username: "ghost",
	})
	require.ErrorIs(t, err, entity.ErrUserNotFound)
	assert.Contains(t, err.Error(), "ghost")

	count, err := p.notifications.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, p.queue.published())
}

func TestRecipientWithNotificationsDisabled(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.createUser(t, "bob", false)

	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{
		Message:  "Quiet",
		Priority: entity.PriorityInfo,
		Username: "bob",
	})
	require.NoError(t, err)
	require.NotNil(t, n.Recipient)
	assert.Equal(t, "bob", n.Recipient.Username)

	msgs := p.queue.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "normal", msgs[0].routingKey)

	for _, err := range p.deliver(t) {
		require.NoError(t, err)
	}

	stored, err := p.notifications.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, stored.Status)
	assert.Zero(t, p.pusher.count())
}

func TestPriorityRouting(t *testing.T) {
	tests := []struct {
		priority entity.Priority
		lane     string
	}{
		{entity.PriorityCritical, "critical"},
		{entity.PriorityWarning, "critical"},
		{entity.PriorityNormal, "normal"},
		{entity.PriorityInfo, "normal"},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			p := newPipeline(t)
			_, err := p.service.SendNotification(context.Background(), &entity.NotificationRequest{
				Message:  "check",
				Priority: tt.priority,
			})
			require.NoError(t, err)

			msgs := p.queue.published()
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.lane, msgs[0].routingKey)
		})
	}
}

func TestTargetedNotificationPushesToUserChannel(t *testing.T) {
	p := newPipeline(t)
	p.createUser(t, "alice", true)

	_, err := p.service.SendNotification(context.Background(), &entity.NotificationRequest{
		Message:  "Hi",
		Priority: entity.PriorityWarning,
		Username: "alice",
	})
	require.NoError(t, err)

	for _, err := range p.deliver(t) {
		require.NoError(t, err)
	}

	require.Len(t, p.pusher.pushes, 1)
	assert.Equal(t, "user/alice", p.pusher.pushes[0].channel)
}

func TestPushFailureIsReturnedAndStatusStaysSent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.pusher.fail(errors.New("transport unavailable"))

	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "Server down", Priority: entity.PriorityCritical})
	require.NoError(t, err)

	errs := p.deliver(t)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], entity.ErrDeliveryFailed)

	stored, err := p.notifications.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, stored.Status)

	// a redelivery after the transport recovers still pushes
	p.pusher.fail(nil)
	for _, err := range p.deliver(t) {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.pusher.count())
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "Once", Priority: entity.PriorityNormal})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		for _, err := range p.deliver(t) {
			require.NoError(t, err)
		}
	}

	stored, err := p.notifications.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, stored.Status)
	assert.Equal(t, 1, p.pusher.count())
}

func TestRedeliveryWithoutDeliveryRecordsPushesAgain(t *testing.T) {
	p := newPipeline(t)
	p.consumer = NewNotificationConsumer(p.notifications, nil, NewDispatcher(p.pusher), time.Hour)

	_, err := p.service.SendNotification(context.Background(), &entity.NotificationRequest{Message: "Twice", Priority: entity.PriorityNormal})
	require.NoError(t, err)

	p.deliver(t)
	p.deliver(t)
	assert.Equal(t, 2, p.pusher.count())
}

func TestConsumerDropsDeletedNotification(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "gone", Priority: entity.PriorityNormal})
	require.NoError(t, err)
	require.NoError(t, p.service.DeleteNotification(ctx, n.ID))

	for _, err := range p.deliver(t) {
		require.NoError(t, err)
	}
	assert.Zero(t, p.pusher.count())
}

func TestConsumerRejectsUndecodablePayload(t *testing.T) {
	p := newPipeline(t)
	handler := p.consumer.Handler(entity.LaneCritical)

	err := handler(context.Background(), []byte("{not json"))
	assert.ErrorIs(t, err, rabbitMQ.ErrUnprocessable)

	err = handler(context.Background(), []byte(`{"message":"no id"}`))
	assert.ErrorIs(t, err, rabbitMQ.ErrUnprocessable)
}

func TestPublishFailureKeepsPendingRecord(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.queue.publishErr = errors.New("broker down")

	_, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "later", Priority: entity.PriorityCritical})
	require.Error(t, err)

	all, err := p.service.GetAllNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, entity.StatusPending, all[0].Status)
}

func TestRepublishStale(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	_, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "stuck", Priority: entity.PriorityCritical})
	require.NoError(t, err)
	p.advance(3 * time.Second)
	_, err = p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "done", Priority: entity.PriorityInfo})
	require.NoError(t, err)

	// consume only the second one
	msgs := p.queue.published()
	require.NoError(t, p.consumer.Handler(entity.LaneNormal)(ctx, msgs[1].body))

	p.advance(10 * time.Minute)
	count, err := p.service.RepublishStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	msgs = p.queue.published()
	require.Len(t, msgs, 3)
	assert.Equal(t, "critical", msgs[2].routingKey)

	count, err = p.service.RepublishStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUserFeedAndStats(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.createUser(t, "alice", true)
	p.createUser(t, "carol", true)

	send := func(message, username string) {
		_, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: message, Priority: entity.PriorityNormal, Username: username})
		require.NoError(t, err)
		p.advance(3 * time.Second)
	}
	send("broadcast one", "")
	send("for alice", "alice")
	send("for carol", "carol")
	send("broadcast two", "")

	feed, err := p.service.GetUserNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "broadcast two", feed[0].Message)
	assert.Equal(t, "for alice", feed[1].Message)
	assert.Equal(t, "broadcast one", feed[2].Message)

	_, err = p.service.GetUserNotifications(ctx, "ghost")
	assert.ErrorIs(t, err, entity.ErrUserNotFound)

	stats, err := p.service.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(4), stats.TotalNotifications)
}

func TestCreateUser(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	user, err := p.userService.CreateUser(ctx, &entity.CreateUserRequest{Username: " dave "})
	require.NoError(t, err)
	assert.Equal(t, "dave", user.Username)
	assert.True(t, user.NotificationsEnabled)

	_, err = p.userService.CreateUser(ctx, &entity.CreateUserRequest{Username: "dave"})
	assert.ErrorIs(t, err, entity.ErrUserAlreadyExists)

	_, err = p.userService.CreateUser(ctx, &entity.CreateUserRequest{Username: rateLimiter.BroadcastKey})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	disabled := false
	updated, err := p.userService.UpdatePreferences(ctx, "dave", &entity.UpdatePreferencesRequest{NotificationsEnabled: &disabled})
	require.NoError(t, err)
	assert.False(t, updated.NotificationsEnabled)

	_, err = p.userService.UpdatePreferences(ctx, "ghost", &entity.UpdatePreferencesRequest{NotificationsEnabled: &disabled})
	assert.ErrorIs(t, err, entity.ErrUserNotFound)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "public", ChannelFor(&entity.Notification{}))
	assert.Equal(t, "user/alice", ChannelFor(&entity.Notification{Recipient: &entity.Recipient{Username: "alice"}}))
	assert.Equal(t, "user/alice", UserChannel("alice"))
}

func TestBroadcastKeyAsUsernameIsNotABroadcast(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	for _, username := range []string{rateLimiter.BroadcastKey, "  " + rateLimiter.BroadcastKey + " "} {
		_, err := p.service.SendNotification(ctx, &entity.NotificationRequest{
			Message:  "secret for a user",
			Priority: entity.PriorityCritical,
			Username: username,
		})
		require.ErrorIs(t, err, entity.ErrUserNotFound)
		p.advance(rateLimiter.DefaultInterval)
	}

	count, err := p.notifications.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, p.queue.published())
	assert.Zero(t, p.pusher.count())
}

func TestBlankMessageRejected(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	for _, message := range []string{"", "   ", "\t\n"} {
		_, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: message, Priority: entity.PriorityNormal})
		assert.ErrorIs(t, err, entity.ErrInvalidInput)
	}
	assert.Empty(t, p.queue.published())

	// rejected input does not use the sender's slot
	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "  padded  ", Priority: entity.PriorityNormal})
	require.NoError(t, err)
	assert.Equal(t, "padded", n.Message)
}

func TestConcurrentRedeliveriesPushOnce(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "Once", Priority: entity.PriorityCritical})
	require.NoError(t, err)

	const redeliveries = 16

	var wg sync.WaitGroup
	wg.Add(redeliveries)
	for i := 0; i < redeliveries; i++ {
		redelivered := *n
		go func() {
			defer wg.Done()
			assert.NoError(t, p.consumer.Process(ctx, &redelivered))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.pusher.count())

	delivered, err := p.deliveries.IsDelivered(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, delivered)
}

func TestFailedPushReleasesDeliveryRecord(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	p.pusher.fail(errors.New("transport unavailable"))

	n, err := p.service.SendNotification(ctx, &entity.NotificationRequest{Message: "retry me", Priority: entity.PriorityNormal})
	require.NoError(t, err)

	require.ErrorIs(t, p.consumer.Process(ctx, n), entity.ErrDeliveryFailed)

	delivered, err := p.deliveries.IsDelivered(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, delivered)
}
