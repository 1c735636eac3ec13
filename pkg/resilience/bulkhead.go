package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Bulkhead bounds the number of concurrent calls to a single resource.
// Callers that find every slot busy wait in a bounded queue; when the queue is
// full they are rejected immediately with ErrBulkheadRejected.
type Bulkhead struct {
	name     string
	slots    chan struct{}
	maxQueue int64
	waiting  atomic.Int64
}

// NewBulkhead creates a bulkhead with maxConcurrent slots and room for maxQueue waiters.
// maxQueue of zero disables queueing: a caller either gets a slot or is rejected.
func NewBulkhead(name string, maxConcurrent, maxQueue int) *Bulkhead {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxQueue < 0 {
		maxQueue = 0
	}
	return &Bulkhead{
		name:     name,
		slots:    make(chan struct{}, maxConcurrent),
		maxQueue: int64(maxQueue),
	}
}

// Permit is a held bulkhead slot. Release is safe to call more than once.
type Permit struct {
	once sync.Once
	b    *Bulkhead
}

// Release returns the slot to the bulkhead.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		<-p.b.slots
	})
}

// Acquire takes a slot, waiting in the queue when all slots are busy.
// Returns ErrBulkheadRejected when the queue is full and ctx.Err() when the
// context ends while waiting.
func (b *Bulkhead) Acquire(ctx context.Context) (*Permit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case b.slots <- struct{}{}:
		return &Permit{b: b}, nil
	default:
	}

	if b.waiting.Add(1) > b.maxQueue {
		b.waiting.Add(-1)
		return nil, fmt.Errorf("%w: %s", ErrBulkheadRejected, b.name)
	}
	defer b.waiting.Add(-1)

	select {
	case b.slots <- struct{}{}:
		return &Permit{b: b}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do runs fn while holding a slot. The slot is released on every exit path.
func (b *Bulkhead) Do(ctx context.Context, fn func(context.Context) error) error {
	permit, err := b.Acquire(ctx)
	if err != nil {
		return err
	}
	defer permit.Release()

	return fn(ctx)
}

func (b *Bulkhead) Name() string { return b.name }

// MaxConcurrent returns the slot count.
func (b *Bulkhead) MaxConcurrent() int { return cap(b.slots) }

// InFlight returns the number of held slots.
func (b *Bulkhead) InFlight() int { return len(b.slots) }

// Waiting returns the number of queued callers.
func (b *Bulkhead) Waiting() int { return int(b.waiting.Load()) }

// Bulkheads is a registry of named bulkheads. Pools not configured explicitly
// are created on first use with the registry defaults.
type Bulkheads struct {
	mu            sync.Mutex
	pools         map[string]*Bulkhead
	maxConcurrent int
	maxQueue      int
}

// NewBulkheads creates a registry whose implicit pools use the given limits.
func NewBulkheads(maxConcurrent, maxQueue int) *Bulkheads {
	return &Bulkheads{
		pools:         make(map[string]*Bulkhead),
		maxConcurrent: maxConcurrent,
		maxQueue:      maxQueue,
	}
}

// NewBulkheadsFromConfig creates a registry with limits from Config.
func NewBulkheadsFromConfig(cfg Config) *Bulkheads {
	return NewBulkheads(cfg.BulkheadMaxConcurrent, cfg.BulkheadMaxQueue)
}

// Configure registers a pool with explicit limits, replacing any pool with the same name.
// Permits already issued by a replaced pool keep referencing it.
func (r *Bulkheads) Configure(name string, maxConcurrent, maxQueue int) *Bulkhead {
	b := NewBulkhead(name, maxConcurrent, maxQueue)

	r.mu.Lock()
	r.pools[name] = b
	r.mu.Unlock()

	return b
}

// Get returns the pool for name, creating it with default limits if needed.
func (r *Bulkheads) Get(name string) *Bulkhead {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.pools[name]
	if !ok {
		b = NewBulkhead(name, r.maxConcurrent, r.maxQueue)
		r.pools[name] = b
	}
	return b
}

// Acquire takes a slot from the named pool.
func (r *Bulkheads) Acquire(ctx context.Context, name string) (*Permit, error) {
	return r.Get(name).Acquire(ctx)
}

// Do runs fn while holding a slot from the named pool.
func (r *Bulkheads) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	return r.Get(name).Do(ctx, fn)
}
