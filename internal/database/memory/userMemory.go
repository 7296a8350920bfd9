package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
)

type userRepository struct {
	mu     sync.RWMutex
	nextID int64
	users  map[string]*entity.User
}

func NewUserRepository() database.UserRepository {
	return &userRepository{users: make(map[string]*entity.User)}
}

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.Username]; ok {
		return fmt.Errorf("%w: %s", entity.ErrUserAlreadyExists, user.Username)
	}

	r.nextID++
	user.ID = r.nextID
	stored := *user
	r.users[user.Username] = &stored
	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[username]
	if !ok {
		return nil, nil
	}
	found := *user
	return &found, nil
}

func (r *userRepository) UpdatePreferences(ctx context.Context, username string, enabled bool) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[username]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	user.NotificationsEnabled = enabled
	updated := *user
	return &updated, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}
