package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
)

type deliveryRepository struct {
	mu        sync.Mutex
	delivered map[int64]time.Time // zero expiry never expires
	now       func() time.Time
}

func NewDeliveryRepository() database.DeliveryRepository {
	return &deliveryRepository{
		delivered: make(map[int64]time.Time),
		now:       time.Now,
	}
}

func (r *deliveryRepository) Claim(ctx context.Context, notificationID int64, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeLocked(notificationID) {
		return false, nil
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = r.now().Add(ttl)
	}
	r.delivered[notificationID] = expiry
	return true, nil
}

func (r *deliveryRepository) Release(ctx context.Context, notificationID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.delivered, notificationID)
	return nil
}

func (r *deliveryRepository) IsDelivered(ctx context.Context, notificationID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activeLocked(notificationID), nil
}

func (r *deliveryRepository) activeLocked(id int64) bool {
	expiry, ok := r.delivered[id]
	if !ok {
		return false
	}
	if !expiry.IsZero() && !r.now().Before(expiry) {
		delete(r.delivered, id)
		return false
	}
	return true
}
