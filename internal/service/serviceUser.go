package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/internal/rateLimiter"
)

type userUseCase struct {
	users database.UserRepository
}

func NewUserUseCase(users database.UserRepository) UserUseCase {
	return &userUseCase{users: users}
}

func (uc *userUseCase) CreateUser(ctx context.Context, req *entity.CreateUserRequest) (*entity.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || username == rateLimiter.BroadcastKey {
		return nil, fmt.Errorf("%w: username %q is not allowed", entity.ErrInvalidInput, req.Username)
	}

	enabled := true
	if req.NotificationsEnabled != nil {
		enabled = *req.NotificationsEnabled
	}

	user := &entity.User{
		Username:             username,
		NotificationsEnabled: enabled,
		CreatedAt:            time.Now(),
	}

	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (uc *userUseCase) UpdatePreferences(ctx context.Context, username string, req *entity.UpdatePreferencesRequest) (*entity.User, error) {
	if req.NotificationsEnabled == nil {
		return nil, fmt.Errorf("%w: notifications_enabled is required", entity.ErrInvalidInput)
	}

	user, err := uc.users.UpdatePreferences(ctx, username, *req.NotificationsEnabled)
	if err != nil {
		return nil, err
	}
	return user, nil
}
