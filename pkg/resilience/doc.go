// Package resilience provides the failure-isolation primitives used around calls to
// external dependencies: a per-service circuit breaker registry, a bulkhead (bounded
// concurrency with a bounded wait queue) and backoff strategies.
//
// # Circuit breaker
//
// CircuitBreakers keeps one breaker per service name. A breaker moves through
// closed → open (after Threshold consecutive failures) → half_open (after the cooldown
// elapses) → closed (trial success) or back to open (trial failure, with the cooldown
// multiplied and capped). While half open exactly one trial call is admitted; every
// other caller fails fast with *CircuitOpenError.
//
//	breakers := resilience.NewCircuitBreakers(
//		resilience.WithThreshold(5),
//		resilience.WithCooldown(30*time.Second, 10*time.Minute),
//	)
//	err := breakers.Call(ctx, "sms-provider", func(ctx context.Context) error {
//		return client.Send(ctx, msg)
//	})
//	if resilience.IsCircuitOpen(err) {
//		// fail fast, try again later
//	}
//
// # Bulkhead
//
// A Bulkhead bounds the number of in-flight operations for a resource. Callers that
// cannot get a slot wait in a bounded queue; when the queue is full Acquire fails
// immediately with ErrBulkheadRejected, which callers should treat as "retry later".
//
//	permit, err := bulkheads.Acquire(ctx, "sms-provider")
//	if err != nil {
//		return err
//	}
//	defer permit.Release()
//
// # Error Handling
//
// ErrCircuitOpen and ErrBulkheadRejected are sentinel errors usable with errors.Is.
// Both signal overload of a dependency rather than a failure of the request itself.
package resilience
