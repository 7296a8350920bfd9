package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
)

const selectNotification = `
	SELECT n.id, n.message, n.priority, n.status, n.created_at,
	       u.id, u.username, u.notifications_enabled
	FROM notifications n
	LEFT JOIN users u ON u.id = n.user_id
`

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) database.NotificationRepository {
	return &notificationRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var (
		n        entity.Notification
		userID   sql.NullInt64
		username sql.NullString
		enabled  sql.NullBool
	)

	err := row.Scan(
		&n.ID,
		&n.Message,
		&n.Priority,
		&n.Status,
		&n.Timestamp,
		&userID,
		&username,
		&enabled,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		n.Recipient = &entity.Recipient{
			ID:                   userID.Int64,
			Username:             username.String,
			NotificationsEnabled: enabled.Bool,
		}
	}
	return &n, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (message, priority, status, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var userID sql.NullInt64
	if n.Recipient != nil {
		userID = sql.NullInt64{Int64: n.Recipient.ID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		n.Message,
		n.Priority,
		n.Status,
		userID,
		n.Timestamp,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx, selectNotification+` WHERE n.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id int64) error {
	// Matching an already SENT row keeps the call idempotent.
	query := `UPDATE notifications SET status = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, entity.StatusSent, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) GetAll(ctx context.Context) ([]*entity.Notification, error) {
	return r.list(ctx, selectNotification+` ORDER BY n.created_at DESC, n.id DESC`)
}

func (r *notificationRepository) GetByRecipientID(ctx context.Context, userID int64) ([]*entity.Notification, error) {
	return r.list(ctx, selectNotification+` WHERE n.user_id = $1 ORDER BY n.created_at DESC, n.id DESC`, userID)
}

func (r *notificationRepository) GetBroadcasts(ctx context.Context) ([]*entity.Notification, error) {
	return r.list(ctx, selectNotification+` WHERE n.user_id IS NULL ORDER BY n.created_at DESC, n.id DESC`)
}

func (r *notificationRepository) GetStalePending(ctx context.Context, olderThan time.Time) ([]*entity.Notification, error) {
	return r.list(ctx,
		selectNotification+` WHERE n.status = $1 AND n.created_at < $2 ORDER BY n.created_at ASC`,
		entity.StatusPending, olderThan,
	)
}

func (r *notificationRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*entity.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notifications, nil
}
