package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/pg"
)

const notificationColumns = `id, user_id, channel, status, title, body, metadata,
	scheduled_at, sent_at, delivered_at, failed_at, failure_reason,
	retry_count, max_retries, inserted_at, updated_at`

// Notifications implements notification.Repository.
type Notifications struct {
	pool *pgxpool.Pool
}

func NewNotifications(pool *pgxpool.Pool) *Notifications {
	return &Notifications{pool: pool}
}

func (s *Notifications) Create(ctx context.Context, n *notification.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		n.ID, n.UserID, string(n.Channel), string(n.Status), n.Title, n.Body, metadataOf(n),
		n.ScheduledAt, n.SentAt, n.DeliveredAt, n.FailedAt, n.FailureReason,
		n.RetryCount, n.MaxRetries, n.InsertedAt, n.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return notification.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Notifications) Get(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if pg.IsNotFoundError(err) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *Notifications) Update(ctx context.Context, n *notification.Notification, expected notification.Status) error {
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, `
		UPDATE notifications SET
			status = $3, title = $4, body = $5, metadata = $6,
			scheduled_at = $7, sent_at = $8, delivered_at = $9, failed_at = $10,
			failure_reason = $11, retry_count = $12, max_retries = $13, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		n.ID, string(expected),
		string(n.Status), n.Title, n.Body, metadataOf(n),
		n.ScheduledAt, n.SentAt, n.DeliveredAt, n.FailedAt,
		n.FailureReason, n.RetryCount, n.MaxRetries,
	).Scan(&updatedAt)

	if pg.IsNotFoundError(err) {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, n.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update notification: %w", err)
		}
		if !exists {
			return notification.ErrNotFound
		}
		return notification.ErrConcurrentUpdate
	}
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}

	n.UpdatedAt = updatedAt.UTC()
	return nil
}

func (s *Notifications) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Notification, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Channel != "" {
		add("channel = $%d", string(filter.Channel))
	}
	if filter.From != nil {
		add("inserted_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("inserted_at <= $%d", *filter.To)
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY inserted_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, filter.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *Notifications) FindByProviderMessageID(ctx context.Context, messageID string) (*notification.Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE metadata ? 'provider_message_id' AND metadata ->> 'provider_message_id' = $1
		LIMIT 1`, messageID)
	n, err := scanNotification(row)
	if pg.IsNotFoundError(err) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find notification by provider message: %w", err)
	}
	return n, nil
}

func metadataOf(n *notification.Notification) map[string]any {
	if n.Metadata == nil {
		return map[string]any{}
	}
	return n.Metadata
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n               notification.Notification
		channel, status string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &channel, &status, &n.Title, &n.Body, &n.Metadata,
		&n.ScheduledAt, &n.SentAt, &n.DeliveredAt, &n.FailedAt, &n.FailureReason,
		&n.RetryCount, &n.MaxRetries, &n.InsertedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if n.Channel, err = notification.ParseChannel(channel); err != nil {
		return nil, errors.Join(ErrCorruptRecord, err)
	}
	if n.Status, err = notification.ParseStatus(status); err != nil {
		return nil, errors.Join(ErrCorruptRecord, err)
	}
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}

	n.ScheduledAt = utc(n.ScheduledAt)
	n.SentAt = utc(n.SentAt)
	n.DeliveredAt = utc(n.DeliveredAt)
	n.FailedAt = utc(n.FailedAt)
	n.InsertedAt = n.InsertedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
