package delivery

import (
	"time"

	"github.com/dmitrymomot/notifier/pkg/resilience"
)

// Config holds delivery pipeline settings.
type Config struct {
	AttemptTimeout       time.Duration `env:"DELIVERY_ATTEMPT_TIMEOUT" envDefault:"30s"`
	RetryInitialInterval time.Duration `env:"DELIVERY_RETRY_INITIAL_INTERVAL" envDefault:"30s"`
	RetryMaxInterval     time.Duration `env:"DELIVERY_RETRY_MAX_INTERVAL" envDefault:"1h"`
	RetryMultiplier      float64       `env:"DELIVERY_RETRY_MULTIPLIER" envDefault:"2"`
	RetryJitter          float64       `env:"DELIVERY_RETRY_JITTER" envDefault:"0.1"`
	OverloadRetryDelay   time.Duration `env:"DELIVERY_OVERLOAD_RETRY_DELAY" envDefault:"5s"`
	GuardTTL             time.Duration `env:"DELIVERY_GUARD_TTL" envDefault:"2m"`
}

// Backoff returns the retry schedule described by the config.
func (c Config) Backoff() resilience.BackoffStrategy {
	return resilience.ExponentialBackoff{
		InitialInterval: c.RetryInitialInterval,
		MaxInterval:     c.RetryMaxInterval,
		Multiplier:      c.RetryMultiplier,
		JitterFactor:    c.RetryJitter,
	}
}
