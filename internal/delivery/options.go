package delivery

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/internal/provider"
	"github.com/dmitrymomot/notifier/pkg/resilience"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSender routes channel to s.
func WithSender(channel notification.Channel, s provider.Sender) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.senders[channel] = s
		}
	}
}

// WithCircuitBreakers shares a breaker registry. Configure it with
// resilience.WithFailurePredicate(IsProviderFailure) so permanent
// rejections do not trip breakers.
func WithCircuitBreakers(cb *resilience.CircuitBreakers) Option {
	return func(o *Orchestrator) { o.breakers = cb }
}

func WithBulkheads(b *resilience.Bulkheads) Option {
	return func(o *Orchestrator) { o.bulkheads = b }
}

func WithGuard(g Guard) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.guard = g
		}
	}
}

// WithContacts sets the directory used when a notification carries no destination.
func WithContacts(d notification.ContactDirectory) Option {
	return func(o *Orchestrator) { o.contacts = d }
}

func WithBackoff(b resilience.BackoffStrategy) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithConfig applies timeouts and the retry schedule from cfg.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		if cfg.AttemptTimeout > 0 {
			o.timeout = cfg.AttemptTimeout
		}
		if cfg.OverloadRetryDelay > 0 {
			o.overload = cfg.OverloadRetryDelay
		}
		if cfg.RetryInitialInterval > 0 {
			o.backoff = cfg.Backoff()
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
