package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Notification
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]*Notification)}
}

func (r *MemoryRepository) Create(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[n.ID]; exists {
		return ErrAlreadyExists
	}
	r.items[n.ID] = n.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, n *Notification, expected Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[n.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return ErrConcurrentUpdate
	}

	c := n.Clone()
	c.UpdatedAt = time.Now().UTC()
	r.items[n.ID] = c
	n.UpdatedAt = c.UpdatedAt
	return nil
}

func (r *MemoryRepository) List(_ context.Context, filter ListFilter) ([]*Notification, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	matched := make([]*Notification, 0)
	for _, n := range r.items {
		if filter.Match(n) {
			matched = append(matched, n.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *Notification) int {
		return b.InsertedAt.Compare(a.InsertedAt)
	})

	if filter.Offset >= len(matched) {
		return []*Notification{}, nil
	}
	end := min(filter.Offset+filter.Limit, len(matched))
	return matched[filter.Offset:end], nil
}

func (r *MemoryRepository) FindByProviderMessageID(_ context.Context, messageID string) (*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.items {
		if messageID != "" && n.Meta(MetaProviderMessageID) == messageID {
			return n.Clone(), nil
		}
	}
	return nil, ErrNotFound
}
