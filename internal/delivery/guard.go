package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/redis"
)

// Guard keeps two delivery attempts for the same notification from running at once.
// Claim reports false without error when another attempt holds the notification.
// The release func is safe to call more than once.
type Guard interface {
	Claim(ctx context.Context, id uuid.UUID) (release func(), ok bool, err error)
}

// MemoryGuard is a process-local Guard. Claims lapse after ttl so a crashed
// attempt cannot pin a notification forever.
type MemoryGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[uuid.UUID]claim
}

type claim struct {
	token   uint64
	expires time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[uuid.UUID]claim),
	}
}

func (g *MemoryGuard) Claim(_ context.Context, id uuid.UUID) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if c, held := g.claims[id]; held && now.Before(c.expires) {
		return func() {}, false, nil
	}

	token := g.claims[id].token + 1
	g.claims[id] = claim{token: token, expires: now.Add(g.ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if c, ok := g.claims[id]; ok && c.token == token {
				delete(g.claims, id)
			}
		})
	}, true, nil
}

// RedisGuard shares claims between replicas through Redis SET NX PX.
type RedisGuard struct {
	locker *redis.Locker
	ttl    time.Duration
}

func NewRedisGuard(locker *redis.Locker, ttl time.Duration) *RedisGuard {
	return &RedisGuard{locker: locker, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, id uuid.UUID) (func(), bool, error) {
	key := "delivery:" + id.String()

	token, ok, err := g.locker.TryLock(ctx, key, g.ttl)
	if err != nil {
		return func() {}, false, errors.Join(ErrGuard, err)
	}
	if !ok {
		return func() {}, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Best effort: the claim lapses on its own after ttl.
			_ = g.locker.Unlock(context.WithoutCancel(ctx), key, token)
		})
	}, true, nil
}

// noGuard admits every claim. Used when the caller serializes attempts itself.
type noGuard struct{}

func (noGuard) Claim(context.Context, uuid.UUID) (func(), bool, error) {
	return func() {}, true, nil
}
