package resilience

import "time"

// CircuitOption configures a CircuitBreakers registry
type CircuitOption func(*CircuitBreakers)

// WithThreshold sets the number of consecutive failures that opens a breaker
func WithThreshold(n int) CircuitOption {
	return func(cb *CircuitBreakers) {
		if n > 0 {
			cb.threshold = n
		}
	}
}

// WithCooldown sets the first cooldown after opening and the cap for extended cooldowns
func WithCooldown(base, max time.Duration) CircuitOption {
	return func(cb *CircuitBreakers) {
		if base > 0 {
			cb.baseCooldown = base
		}
		if max > 0 {
			cb.maxCooldown = max
		}
	}
}

// WithCooldownMultiplier sets the growth factor applied when a half-open trial fails
func WithCooldownMultiplier(m float64) CircuitOption {
	return func(cb *CircuitBreakers) {
		if m >= 1 {
			cb.multiplier = m
		}
	}
}

// WithFailurePredicate decides which errors count as dependency failures.
// Errors for which fn returns false leave the failure counter untouched.
func WithFailurePredicate(fn func(error) bool) CircuitOption {
	return func(cb *CircuitBreakers) {
		if fn != nil {
			cb.isFailure = fn
		}
	}
}

// WithStateChangeHook registers a callback for breaker state transitions
func WithStateChangeHook(hook StateChangeHook) CircuitOption {
	return func(cb *CircuitBreakers) {
		cb.onStateChange = hook
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) CircuitOption {
	return func(cb *CircuitBreakers) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithConfig applies breaker settings from Config
func WithConfig(cfg Config) CircuitOption {
	return func(cb *CircuitBreakers) {
		WithThreshold(cfg.BreakerThreshold)(cb)
		WithCooldown(cfg.BreakerCooldown, cfg.BreakerMaxCooldown)(cb)
		WithCooldownMultiplier(cfg.BreakerCooldownMultiplier)(cb)
	}
}
