package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Repository persists notifications.
type Repository interface {
	// Create stores a new notification. Returns ErrAlreadyExists on id collision.
	Create(ctx context.Context, n *Notification) error

	// Get loads a notification by id. Returns ErrNotFound when missing.
	Get(ctx context.Context, id uuid.UUID) (*Notification, error)

	// Update replaces the stored notification if its stored status still equals expected.
	// Returns ErrConcurrentUpdate otherwise.
	Update(ctx context.Context, n *Notification, expected Status) error

	// List returns a user's notifications, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Notification, error)

	// FindByProviderMessageID resolves a provider receipt to its notification.
	FindByProviderMessageID(ctx context.Context, messageID string) (*Notification, error)
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	UserID  string
	Status  Status
	Channel Channel
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// Normalize clamps pagination to the allowed range.
func (f ListFilter) Normalize() ListFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Match reports whether n satisfies every filter criterion except pagination.
func (f ListFilter) Match(n *Notification) bool {
	if f.UserID != "" && n.UserID != f.UserID {
		return false
	}
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if f.Channel != "" && n.Channel != f.Channel {
		return false
	}
	if f.From != nil && n.InsertedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && n.InsertedAt.After(*f.To) {
		return false
	}
	return true
}
