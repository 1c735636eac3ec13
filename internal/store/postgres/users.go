package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/pg"
)

// Preferences implements notification.PreferencesStore.
type Preferences struct {
	pool *pgxpool.Pool
}

func NewPreferences(pool *pgxpool.Pool) *Preferences {
	return &Preferences{pool: pool}
}

func (s *Preferences) Get(ctx context.Context, userID string) (notification.Preferences, error) {
	p := notification.Preferences{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT email, sms, whatsapp, updated_at FROM user_preferences WHERE user_id = $1`, userID,
	).Scan(&p.Email, &p.SMS, &p.WhatsApp, &p.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return notification.DefaultPreferences(userID), nil
	}
	if err != nil {
		return notification.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Preferences) Save(ctx context.Context, p notification.Preferences) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, email, sms, whatsapp, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email, sms = EXCLUDED.sms, whatsapp = EXCLUDED.whatsapp, updated_at = now()`,
		p.UserID, p.Email, p.SMS, p.WhatsApp)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *Preferences) Reset(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_preferences WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("reset preferences: %w", err)
	}
	return nil
}

// Contacts implements notification.ContactDirectory over user_contacts.
type Contacts struct {
	pool *pgxpool.Pool
}

func NewContacts(pool *pgxpool.Pool) *Contacts {
	return &Contacts{pool: pool}
}

func (s *Contacts) Lookup(ctx context.Context, userID string) (notification.Contact, error) {
	c := notification.Contact{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT email, phone FROM user_contacts WHERE user_id = $1`, userID,
	).Scan(&c.Email, &c.Phone)
	if pg.IsNotFoundError(err) {
		return notification.Contact{}, notification.ErrContactNotFound
	}
	if err != nil {
		return notification.Contact{}, fmt.Errorf("lookup contact: %w", err)
	}
	return c, nil
}

// Put stores or replaces a user's addresses. Fed by user lifecycle events.
func (s *Contacts) Put(ctx context.Context, c notification.Contact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_contacts (user_id, email, phone, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), user_contacts.email),
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), user_contacts.phone),
			updated_at = now()`,
		c.UserID, c.Email, c.Phone)
	if err != nil {
		return fmt.Errorf("put contact: %w", err)
	}
	return nil
}
