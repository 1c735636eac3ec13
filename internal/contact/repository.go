package contact

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists contact requests.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id uuid.UUID) (*Request, error)
	// Update replaces the stored request if its status still equals expected.
	// Returns ErrConcurrentUpdate otherwise.
	Update(ctx context.Context, r *Request, expected Status) error
	// ListExpired returns unpurged requests whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Request, error)
	// ListByKey returns unpurged requests encrypted with keyID.
	ListByKey(ctx context.Context, keyID string, limit int) ([]*Request, error)
	// CountByKey counts unpurged requests encrypted with keyID.
	CountByKey(ctx context.Context, keyID string) (int, error)
}

// Key is one entry of the keyring. The key without RetiredAt is current.
type Key struct {
	ID        string
	Material  []byte
	CreatedAt time.Time
	RetiredAt *time.Time
}

// KeyStore persists keyring entries.
type KeyStore interface {
	// Current returns the current key or ErrKeyNotFound.
	Current(ctx context.Context) (Key, error)
	Get(ctx context.Context, id string) (Key, error)
	List(ctx context.Context) ([]Key, error)
	// Rotate inserts next and retires every other current key at retiredAt, atomically.
	Rotate(ctx context.Context, next Key, retiredAt time.Time) error
	Delete(ctx context.Context, id string) error
}
