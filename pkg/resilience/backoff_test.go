package resilience_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifier/pkg/resilience"
)

func TestExponentialBackoff_NextInterval(t *testing.T) {
	t.Parallel()

	b := resilience.ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, b.NextInterval(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_Jitter(t *testing.T) {
	t.Parallel()

	b := resilience.ExponentialBackoff{
		InitialInterval: 10 * time.Second,
		MaxInterval:     time.Hour,
		Multiplier:      2,
		JitterFactor:    0.1,
	}

	for i := 0; i < 100; i++ {
		d := b.NextInterval(2)
		assert.GreaterOrEqual(t, d, 18*time.Second)
		assert.LessOrEqual(t, d, 22*time.Second)
	}
}

func TestFixedBackoff(t *testing.T) {
	t.Parallel()

	b := resilience.FixedBackoff{Interval: 5 * time.Second}
	assert.Zero(t, b.NextInterval(0))
	assert.Equal(t, 5*time.Second, b.NextInterval(1))
	assert.Equal(t, 5*time.Second, b.NextInterval(7))
}

func TestDefaultRetryBackoff(t *testing.T) {
	t.Parallel()

	b := resilience.DefaultRetryBackoff()
	first := b.NextInterval(1)
	assert.GreaterOrEqual(t, first, 27*time.Second)
	assert.LessOrEqual(t, first, 33*time.Second)
	assert.LessOrEqual(t, b.NextInterval(50), time.Hour)
}
