package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets calls through and counts consecutive failures
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown elapses
	CircuitOpen
	// CircuitHalfOpen admits a single trial call
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitSnapshot is a point-in-time view of one breaker, used for monitoring.
type CircuitSnapshot struct {
	Service             string
	State               CircuitState
	ConsecutiveFailures int
	OpenedAt            time.Time
	CooldownUntil       time.Time
}

// StateChangeHook is invoked after a breaker changes state, outside of its lock.
type StateChangeHook func(service string, from, to CircuitState)

// CircuitBreakers is a registry of circuit breakers keyed by service name.
// Safe for concurrent use; the zero value is not usable, use NewCircuitBreakers.
type CircuitBreakers struct {
	mu       sync.Mutex
	breakers map[string]*circuit

	threshold     int
	baseCooldown  time.Duration
	maxCooldown   time.Duration
	multiplier    float64
	isFailure     func(error) bool
	onStateChange StateChangeHook
	now           func() time.Time
}

// circuit holds the state of a single service's breaker.
// All fields are guarded by mu.
type circuit struct {
	mu            sync.Mutex
	service       string
	state         CircuitState
	failures      int
	openedAt      time.Time
	cooldownUntil time.Time
	cooldown      time.Duration
	trialInFlight bool
}

// NewCircuitBreakers creates an empty registry. Breakers are created lazily on first use.
func NewCircuitBreakers(opts ...CircuitOption) *CircuitBreakers {
	cb := &CircuitBreakers{
		breakers:     make(map[string]*circuit),
		threshold:    5,
		baseCooldown: 30 * time.Second,
		maxCooldown:  10 * time.Minute,
		multiplier:   2,
		isFailure:    defaultIsFailure,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(cb)
	}

	if cb.maxCooldown < cb.baseCooldown {
		cb.maxCooldown = cb.baseCooldown
	}

	return cb
}

// defaultIsFailure counts every error except cancellation by the caller.
func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Call executes op through the breaker registered for service.
// When the breaker refuses the call op is not invoked and a *CircuitOpenError is returned.
// The error returned by op is passed through unchanged.
func (cb *CircuitBreakers) Call(ctx context.Context, service string, op func(context.Context) error) error {
	c := cb.get(service)

	if err := cb.admit(c); err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			cb.record(c, errOperationPanicked)
		}
	}()

	err := op(ctx)
	completed = true
	cb.record(c, err)

	return err
}

// State returns the effective state for service. An open breaker whose cooldown has
// elapsed is reported as half open, matching what the next call would observe.
func (cb *CircuitBreakers) State(service string) CircuitState {
	return cb.Snapshot(service).State
}

// Snapshot returns the current state of the breaker for service.
func (cb *CircuitBreakers) Snapshot(service string) CircuitSnapshot {
	c := cb.get(service)

	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.state
	if state == CircuitOpen && !cb.now().Before(c.cooldownUntil) {
		state = CircuitHalfOpen
	}

	return CircuitSnapshot{
		Service:             c.service,
		State:               state,
		ConsecutiveFailures: c.failures,
		OpenedAt:            c.openedAt,
		CooldownUntil:       c.cooldownUntil,
	}
}

// Reset forces the breaker for service back to closed.
func (cb *CircuitBreakers) Reset(service string) {
	c := cb.get(service)

	c.mu.Lock()
	from := c.state
	c.state = CircuitClosed
	c.failures = 0
	c.openedAt = time.Time{}
	c.cooldownUntil = time.Time{}
	c.cooldown = 0
	c.trialInFlight = false
	c.mu.Unlock()

	cb.notify(service, from, CircuitClosed)
}

// Services lists every service that has a breaker.
func (cb *CircuitBreakers) Services() []string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	names := make([]string, 0, len(cb.breakers))
	for name := range cb.breakers {
		names = append(names, name)
	}
	return names
}

func (cb *CircuitBreakers) get(service string) *circuit {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.breakers[service]
	if !ok {
		c = &circuit{service: service, state: CircuitClosed}
		cb.breakers[service] = c
	}
	return c
}

// admit decides whether a call may proceed. Transitions open → half_open when the
// cooldown has elapsed and reserves the single trial slot.
func (cb *CircuitBreakers) admit(c *circuit) error {
	c.mu.Lock()

	now := cb.now()
	switch c.state {
	case CircuitClosed:
		c.mu.Unlock()
		return nil

	case CircuitOpen:
		if now.Before(c.cooldownUntil) {
			retryAfter := c.cooldownUntil.Sub(now)
			c.mu.Unlock()
			return &CircuitOpenError{Service: c.service, RetryAfter: retryAfter}
		}
		c.state = CircuitHalfOpen
		c.trialInFlight = true
		c.mu.Unlock()
		cb.notify(c.service, CircuitOpen, CircuitHalfOpen)
		return nil

	case CircuitHalfOpen:
		if c.trialInFlight {
			c.mu.Unlock()
			return &CircuitOpenError{Service: c.service, RetryAfter: cb.baseCooldown}
		}
		c.trialInFlight = true
		c.mu.Unlock()
		return nil
	}

	c.mu.Unlock()
	return &CircuitOpenError{Service: c.service}
}

// record applies the outcome of a call to the breaker.
// Errors rejected by the failure predicate mean the dependency answered; they neither
// count towards the threshold nor reset it, but they do complete a half-open trial.
// A cancelled trial never reached the dependency and leaves the breaker half open.
func (cb *CircuitBreakers) record(c *circuit, err error) {
	failed := err != nil && cb.isFailure(err)
	cancelled := !failed && errors.Is(err, context.Canceled)

	c.mu.Lock()
	from := c.state
	now := cb.now()

	switch c.state {
	case CircuitClosed:
		switch {
		case failed:
			c.failures++
			if c.failures >= cb.threshold {
				c.open(now, cb.baseCooldown)
			}
		case err == nil:
			c.failures = 0
		}

	case CircuitHalfOpen:
		c.trialInFlight = false
		switch {
		case failed:
			c.failures++
			c.open(now, cb.nextCooldown(c.cooldown))
		case cancelled:
		default:
			c.state = CircuitClosed
			c.failures = 0
			c.cooldown = 0
			c.openedAt = time.Time{}
			c.cooldownUntil = time.Time{}
		}

	case CircuitOpen:
		// A call admitted before the breaker opened finished late; nothing to do.
	}

	to := c.state
	c.mu.Unlock()

	if from != to {
		cb.notify(c.service, from, to)
	}
}

func (c *circuit) open(now time.Time, cooldown time.Duration) {
	c.state = CircuitOpen
	c.openedAt = now
	c.cooldown = cooldown
	c.cooldownUntil = now.Add(cooldown)
}

// nextCooldown extends the previous cooldown by the multiplier, capped at maxCooldown.
func (cb *CircuitBreakers) nextCooldown(prev time.Duration) time.Duration {
	if prev <= 0 {
		return cb.baseCooldown
	}
	next := time.Duration(float64(prev) * cb.multiplier)
	if next > cb.maxCooldown {
		next = cb.maxCooldown
	}
	return next
}

func (cb *CircuitBreakers) notify(service string, from, to CircuitState) {
	if cb.onStateChange != nil && from != to {
		cb.onStateChange(service, from, to)
	}
}
