package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"

	"github.com/lib/pq"
)

// unique_violation
const uniqueViolation = "23505"

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) database.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (username, notifications_enabled, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		user.Username,
		user.NotificationsEnabled,
		user.CreatedAt,
	).Scan(&user.ID)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", entity.ErrUserAlreadyExists, user.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	query := `
		SELECT id, username, notifications_enabled, created_at
		FROM users
		WHERE username = $1
	`

	var user entity.User
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.NotificationsEnabled,
		&user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) UpdatePreferences(ctx context.Context, username string, enabled bool) (*entity.User, error) {
	query := `
		UPDATE users
		SET notifications_enabled = $1
		WHERE username = $2
		RETURNING id, username, notifications_enabled, created_at
	`

	var user entity.User
	err := r.db.QueryRowContext(ctx, query, enabled, username).Scan(
		&user.ID,
		&user.Username,
		&user.NotificationsEnabled,
		&user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, entity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user preferences: %w", err)
	}

	return &user, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
