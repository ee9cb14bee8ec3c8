package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/carepulse/internal/persistence"
)

// OutboxRepository implements persistence.NotificationOutbox using SQLite.
type OutboxRepository struct {
	pool *ConnectionPool
}

// NewOutboxRepository creates a new SQLite notification outbox.
func NewOutboxRepository(pool *ConnectionPool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// EnqueueNotification stores a notification for later delivery. Enqueuing the
// same notification ID twice is a no-op.
func (r *OutboxRepository) EnqueueNotification(ctx context.Context, n persistence.Notification) error {
	if n.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO notification_outbox
			(id, appointment_id, recipient_user_id, body, attempts, last_error, next_attempt_at, delivered_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		n.ID,
		n.AppointmentID,
		n.RecipientUserID,
		n.Body,
		n.Attempts,
		nullString(n.LastError),
		formatTime(n.NextAttemptAt),
		nullTime(n.DeliveredAt),
		formatTime(n.CreatedAt),
	)
	return mapError(err)
}

// ListDueNotifications returns undelivered notifications whose next attempt is
// at or before reference, oldest first. Rows that reached maxAttempts are
// skipped; a non-positive maxAttempts disables that filter.
func (r *OutboxRepository) ListDueNotifications(ctx context.Context, reference time.Time, maxAttempts, limit int) ([]persistence.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, appointment_id, recipient_user_id, body, attempts, last_error, next_attempt_at, delivered_at, created_at
		FROM notification_outbox
		WHERE delivered_at IS NULL AND next_attempt_at <= ? AND (? <= 0 OR attempts < ?)
		ORDER BY next_attempt_at ASC, rowid ASC
		LIMIT ?
	`, formatTime(reference), maxAttempts, maxAttempts, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	notifications := make([]persistence.Notification, 0)
	for rows.Next() {
		var (
			n             persistence.Notification
			lastError     sql.NullString
			nextAttemptAt string
			deliveredAt   sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&n.ID, &n.AppointmentID, &n.RecipientUserID, &n.Body, &n.Attempts, &lastError, &nextAttemptAt, &deliveredAt, &createdAt); err != nil {
			return nil, mapError(err)
		}
		if n.NextAttemptAt, err = parseTime(nextAttemptAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if n.DeliveredAt, err = timePtr(deliveredAt); err != nil {
			return nil, err
		}
		n.LastError = stringPtr(lastError)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return notifications, nil
}

// MarkNotificationDelivered records a successful delivery.
func (r *OutboxRepository) MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	return r.updateOne(ctx, `
		UPDATE notification_outbox SET delivered_at = ?, last_error = NULL WHERE id = ?
	`, formatTime(deliveredAt), id)
}

// MarkNotificationFailed records a failed attempt and schedules the next one.
func (r *OutboxRepository) MarkNotificationFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	return r.updateOne(ctx, `
		UPDATE notification_outbox SET attempts = ?, last_error = ?, next_attempt_at = ? WHERE id = ?
	`, attempts, lastError, formatTime(nextAttemptAt), id)
}

func (r *OutboxRepository) updateOne(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
