package audit

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(_ context.Context, event Event) error {
	event.Metadata = maps.Clone(event.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.events, func(e Event) bool { return e.ID == event.ID }) {
		return nil
	}
	s.events = append(s.events, event)
	return nil
}

// Query returns matching events in insertion order
func (s *MemoryStorage) Query(_ context.Context, criteria Criteria) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	skipped := 0
	for _, e := range s.events {
		if !criteria.match(e) {
			continue
		}
		if skipped < criteria.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if criteria.Limit > 0 && len(out) == criteria.Limit {
			break
		}
	}
	return slices.Clip(out), nil
}
