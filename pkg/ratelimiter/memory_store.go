package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type bucketState struct {
	tokens   int
	refilled time.Time
}

// MemoryStore keeps buckets in process. Buckets idle long enough to be full
// again are dropped on the next sweep, which runs every sweepEvery calls.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	calls   int
}

const sweepEvery = 1024

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucketState)}
}

func (s *MemoryStore) Take(_ context.Context, key string, tokens int, cfg Config, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls%sweepEvery == 0 {
		s.sweep(cfg, now)
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucketState{tokens: cfg.Capacity, refilled: now}
		s.buckets[key] = b
	}
	refill(&b.tokens, &b.refilled, cfg, now)

	if b.tokens < tokens {
		return b.tokens - tokens, b.refilled.Add(cfg.RefillInterval), nil
	}
	b.tokens -= tokens
	return b.tokens, b.refilled.Add(cfg.RefillInterval), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) sweep(cfg Config, now time.Time) {
	for key, b := range s.buckets {
		if now.Sub(b.refilled) > cfg.ttl() {
			delete(s.buckets, key)
		}
	}
}

// refill adds the tokens earned by whole intervals since refilled. The
// refill mark advances by those intervals only, so partial progress toward
// the next token is kept.
func refill(tokens *int, refilled *time.Time, cfg Config, now time.Time) {
	elapsed := now.Sub(*refilled)
	if elapsed < cfg.RefillInterval {
		return
	}
	intervals := int64(elapsed / cfg.RefillInterval)
	if *tokens >= cfg.Capacity {
		*refilled = now
		return
	}
	needed := int64((cfg.Capacity-*tokens+cfg.RefillRate-1)/cfg.RefillRate)
	if intervals >= needed {
		*tokens = cfg.Capacity
		*refilled = now
		return
	}
	*tokens += int(intervals) * cfg.RefillRate
	*refilled = refilled.Add(time.Duration(intervals) * cfg.RefillInterval)
}
