package contact

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
	items map[uuid.UUID]*Request
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]*Request)}
}

func (m *MemoryRepository) Create(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[r.ID] = r.Clone()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryRepository) Update(_ context.Context, r *Request, expected Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.items[r.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return ErrConcurrentUpdate
	}

	r.UpdatedAt = time.Now().UTC()
	m.items[r.ID] = r.Clone()
	return nil
}

func (m *MemoryRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]*Request, error) {
	return m.list(limit, func(r *Request) bool { return r.ExpiredAt(now) }), nil
}

func (m *MemoryRepository) ListByKey(_ context.Context, keyID string, limit int) ([]*Request, error) {
	return m.list(limit, func(r *Request) bool { return r.KeyID == keyID }), nil
}

func (m *MemoryRepository) CountByKey(_ context.Context, keyID string) (int, error) {
	return len(m.list(0, func(r *Request) bool { return r.KeyID == keyID })), nil
}

func (m *MemoryRepository) list(limit int, keep func(*Request) bool) []*Request {
	m.mu.RLock()
	out := make([]*Request, 0)
	for _, r := range m.items {
		if !r.Purged() && keep(r) {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Request) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MemoryKeyStore is an in-memory KeyStore.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]Key
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]Key)}
}

func (s *MemoryKeyStore) Current(_ context.Context) (Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.keys {
		if k.RetiredAt == nil {
			return k, nil
		}
	}
	return Key{}, ErrKeyNotFound
}

func (s *MemoryKeyStore) Get(_ context.Context, id string) (Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[id]
	if !ok {
		return Key{}, ErrKeyNotFound
	}
	return k, nil
}

func (s *MemoryKeyStore) List(_ context.Context) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Key, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b Key) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *MemoryKeyStore) Rotate(_ context.Context, next Key, retiredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, k := range s.keys {
		if k.RetiredAt == nil {
			t := retiredAt
			k.RetiredAt = &t
			s.keys[id] = k
		}
	}
	s.keys[next.ID] = next
	return nil
}

func (s *MemoryKeyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, id)
	return nil
}
