package ratelimiter

import (
	"context"
	"time"
)

// Store persists bucket state. Take must refill and consume atomically.
// It returns the tokens left after consuming, or the shortfall as a negative
// number when the bucket holds fewer than tokens, in which case nothing is
// consumed.
type Store interface {
	Take(ctx context.Context, key string, tokens int, cfg Config, now time.Time) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}
