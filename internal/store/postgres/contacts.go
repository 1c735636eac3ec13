package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/pkg/pg"
)

const requestColumns = `id, requester_user_id, owner_user_id, purpose, encrypted_payload,
	key_id, status, expires_at, purged_at, created_at, updated_at`

const liveRequest = `purged_at IS NULL AND encrypted_payload IS NOT NULL`

// ContactRequests implements contact.Repository.
type ContactRequests struct {
	pool *pgxpool.Pool
}

func NewContactRequests(pool *pgxpool.Pool) *ContactRequests {
	return &ContactRequests{pool: pool}
}

func (s *ContactRequests) Create(ctx context.Context, r *contact.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contact_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.RequesterUserID, r.OwnerUserID, r.Purpose, r.EncryptedPayload,
		r.KeyID, string(r.Status), r.ExpiresAt, r.PurgedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contact request: %w", err)
	}
	return nil
}

func (s *ContactRequests) Get(ctx context.Context, id uuid.UUID) (*contact.Request, error) {
	r, err := scanRequest(s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM contact_requests WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact request: %w", err)
	}
	return r, nil
}

func (s *ContactRequests) Update(ctx context.Context, r *contact.Request, expected contact.Status) error {
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, `
		UPDATE contact_requests SET
			purpose = $3, encrypted_payload = $4, key_id = $5, status = $6,
			expires_at = $7, purged_at = $8, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`,
		r.ID, string(expected),
		r.Purpose, r.EncryptedPayload, r.KeyID, string(r.Status), r.ExpiresAt, r.PurgedAt,
	).Scan(&updatedAt)

	if pg.IsNotFoundError(err) {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contact_requests WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update contact request: %w", err)
		}
		if !exists {
			return contact.ErrNotFound
		}
		return contact.ErrConcurrentUpdate
	}
	if err != nil {
		return fmt.Errorf("update contact request: %w", err)
	}

	r.UpdatedAt = updatedAt.UTC()
	return nil
}

func (s *ContactRequests) ListExpired(ctx context.Context, now time.Time, limit int) ([]*contact.Request, error) {
	return s.list(ctx, `expires_at <= $1`, now, limit)
}

func (s *ContactRequests) ListByKey(ctx context.Context, keyID string, limit int) ([]*contact.Request, error) {
	return s.list(ctx, `key_id = $1`, keyID, limit)
}

func (s *ContactRequests) CountByKey(ctx context.Context, keyID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM contact_requests WHERE key_id = $1 AND `+liveRequest, keyID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contact requests: %w", err)
	}
	return n, nil
}

func (s *ContactRequests) list(ctx context.Context, cond string, arg any, limit int) ([]*contact.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM contact_requests
		WHERE ` + cond + ` AND ` + liveRequest + `
		ORDER BY expires_at`
	args := []any{arg}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contact requests: %w", err)
	}
	defer rows.Close()

	var out []*contact.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("list contact requests: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contact requests: %w", err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (*contact.Request, error) {
	var (
		r      contact.Request
		status string
	)
	err := row.Scan(
		&r.ID, &r.RequesterUserID, &r.OwnerUserID, &r.Purpose, &r.EncryptedPayload,
		&r.KeyID, &status, &r.ExpiresAt, &r.PurgedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Status, err = contact.ParseStatus(status); err != nil {
		return nil, errors.Join(ErrCorruptRecord, err)
	}
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.PurgedAt = utc(r.PurgedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// ContactKeys implements contact.KeyStore.
type ContactKeys struct {
	pool *pgxpool.Pool
}

func NewContactKeys(pool *pgxpool.Pool) *ContactKeys {
	return &ContactKeys{pool: pool}
}

func (s *ContactKeys) Current(ctx context.Context) (contact.Key, error) {
	return s.one(ctx, `SELECT id, material, created_at, retired_at FROM contact_keys WHERE retired_at IS NULL`)
}

func (s *ContactKeys) Get(ctx context.Context, id string) (contact.Key, error) {
	return s.one(ctx, `SELECT id, material, created_at, retired_at FROM contact_keys WHERE id = $1`, id)
}

func (s *ContactKeys) List(ctx context.Context) ([]contact.Key, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, material, created_at, retired_at FROM contact_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list contact keys: %w", err)
	}
	defer rows.Close()

	var out []contact.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("list contact keys: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contact keys: %w", err)
	}
	return out, nil
}

func (s *ContactKeys) Rotate(ctx context.Context, next contact.Key, retiredAt time.Time) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE contact_keys SET retired_at = $1 WHERE retired_at IS NULL`, retiredAt); err != nil {
			return fmt.Errorf("retire contact keys: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO contact_keys (id, material, created_at, retired_at) VALUES ($1, $2, $3, $4)`,
			next.ID, next.Material, next.CreatedAt, next.RetiredAt,
		); err != nil {
			return fmt.Errorf("insert contact key: %w", err)
		}
		return nil
	})
}

func (s *ContactKeys) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM contact_keys WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete contact key: %w", err)
	}
	return nil
}

func (s *ContactKeys) one(ctx context.Context, query string, args ...any) (contact.Key, error) {
	k, err := scanKey(s.pool.QueryRow(ctx, query, args...))
	if pg.IsNotFoundError(err) {
		return contact.Key{}, contact.ErrKeyNotFound
	}
	if err != nil {
		return contact.Key{}, fmt.Errorf("get contact key: %w", err)
	}
	return k, nil
}

func scanKey(row pgx.Row) (contact.Key, error) {
	var k contact.Key
	if err := row.Scan(&k.ID, &k.Material, &k.CreatedAt, &k.RetiredAt); err != nil {
		return contact.Key{}, err
	}
	k.CreatedAt = k.CreatedAt.UTC()
	k.RetiredAt = utc(k.RetiredAt)
	return k, nil
}
