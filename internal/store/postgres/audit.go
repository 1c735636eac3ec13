package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifier/pkg/audit"
)

// AuditEvents implements audit.Storage. Rows are append-only; the table
// rejects updates and deletes.
type AuditEvents struct {
	pool *pgxpool.Pool
}

func NewAuditEvents(pool *pgxpool.Pool) *AuditEvents {
	return &AuditEvents{pool: pool}
}

func (s *AuditEvents) Store(ctx context.Context, e audit.Event) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, user_id, action, resource, resource_id, result, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.UserID, e.Action, e.Resource, e.ResourceID, string(e.Result), e.Error, metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *AuditEvents) Query(ctx context.Context, c audit.Criteria) ([]audit.Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if c.UserID != "" {
		add("user_id = $%d", c.UserID)
	}
	if c.Action != "" {
		add("action = $%d", c.Action)
	}
	if c.Resource != "" {
		add("resource = $%d", c.Resource)
	}
	if c.ResourceID != "" {
		add("resource_id = $%d", c.ResourceID)
	}
	if !c.StartTime.IsZero() {
		add("created_at >= $%d", c.StartTime)
	}
	if !c.EndTime.IsZero() {
		add("created_at < $%d", c.EndTime)
	}

	query := `SELECT id, user_id, action, resource, resource_id, result, error, metadata, created_at FROM audit_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`
	if c.Limit > 0 {
		args = append(args, c.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if c.Offset > 0 {
		args = append(args, c.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e      audit.Event
			result string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID, &result, &e.Error, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("query audit events: %w", err)
		}
		e.Result = audit.Result(result)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return out, nil
}
