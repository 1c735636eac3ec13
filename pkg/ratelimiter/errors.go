package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid rate limit configuration")
	ErrInvalidTokenCount = errors.New("invalid token count")

	// ErrStoreUnavailable wraps failures of the storage backend.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)
