package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
)

type notificationRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*entity.Notification
}

func NewNotificationRepository() database.NotificationRepository {
	return &notificationRepository{items: make(map[int64]*entity.Notification)}
}

func clone(n *entity.Notification) *entity.Notification {
	c := *n
	if n.Recipient != nil {
		r := *n.Recipient
		c.Recipient = &r
	}
	return &c
}

func (r *notificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	n.ID = r.nextID
	r.items[n.ID] = clone(n)
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return clone(n), nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return entity.ErrNotificationNotFound
	}
	n.Status = entity.StatusSent
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return entity.ErrNotificationNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *notificationRepository) GetAll(ctx context.Context) ([]*entity.Notification, error) {
	return r.filter(func(*entity.Notification) bool { return true }), nil
}

func (r *notificationRepository) GetByRecipientID(ctx context.Context, userID int64) ([]*entity.Notification, error) {
	return r.filter(func(n *entity.Notification) bool {
		return n.Recipient != nil && n.Recipient.ID == userID
	}), nil
}

func (r *notificationRepository) GetBroadcasts(ctx context.Context) ([]*entity.Notification, error) {
	return r.filter(func(n *entity.Notification) bool { return n.IsBroadcast() }), nil
}

func (r *notificationRepository) GetStalePending(ctx context.Context, olderThan time.Time) ([]*entity.Notification, error) {
	stale := r.filter(func(n *entity.Notification) bool {
		return n.Status == entity.StatusPending && n.Timestamp.Before(olderThan)
	})
	// oldest first
	for i, j := 0, len(stale)-1; i < j; i, j = i+1, j-1 {
		stale[i], stale[j] = stale[j], stale[i]
	}
	return stale, nil
}

func (r *notificationRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.items)), nil
}

// filter returns matching copies, newest first.
func (r *notificationRepository) filter(keep func(*entity.Notification) bool) []*entity.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entity.Notification, 0, len(r.items))
	for _, n := range r.items {
		if keep(n) {
			result = append(result, clone(n))
		}
	}

	entity.SortNewestFirst(result)
	return result
}
