package resilience

import "time"

// Config holds breaker and bulkhead settings shared by every provider.
type Config struct {
	BreakerThreshold          int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerCooldown           time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
	BreakerMaxCooldown        time.Duration `env:"BREAKER_MAX_COOLDOWN" envDefault:"10m"`
	BreakerCooldownMultiplier float64       `env:"BREAKER_COOLDOWN_MULTIPLIER" envDefault:"2"`
	BulkheadMaxConcurrent     int           `env:"BULKHEAD_MAX_CONCURRENT" envDefault:"10"`
	BulkheadMaxQueue          int           `env:"BULKHEAD_MAX_QUEUE" envDefault:"50"`
}
