package resilience

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrBulkheadRejected = errors.New("bulkhead rejected: pool saturated")

	errOperationPanicked = errors.New("operation panicked")
)

// CircuitOpenError is returned by CircuitBreakers.Call when the breaker for the
// service refuses the call without invoking the operation.
type CircuitOpenError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %q is open, retry after %s", e.Service, e.RetryAfter)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// IsCircuitOpen reports whether err was produced by an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsBulkheadRejected reports whether err was produced by a saturated bulkhead.
func IsBulkheadRejected(err error) bool {
	return errors.Is(err, ErrBulkheadRejected)
}

// RetryAfter extracts the suggested wait from a circuit-open error.
// Returns false for any other error.
func RetryAfter(err error) (time.Duration, bool) {
	var coe *CircuitOpenError
	if errors.As(err, &coe) {
		return coe.RetryAfter, true
	}
	return 0, false
}
