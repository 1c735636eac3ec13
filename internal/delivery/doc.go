// Package delivery runs notifications through their channel provider.
//
// Each attempt is wrapped, outermost first, in the provider's bulkhead, its
// circuit breaker and a per-attempt timeout. The outcome is written back with
// an expected-status check so concurrent writers cannot overwrite each other:
//
//	orch := delivery.NewOrchestrator(repo, jobScheduler,
//		delivery.WithSender(notification.ChannelEmail, postmark),
//		delivery.WithSender(notification.ChannelSMS, sms),
//		delivery.WithCircuitBreakers(breakers),
//		delivery.WithBulkheads(bulkheads),
//		delivery.WithGuard(delivery.NewRedisGuard(locker, cfg.GuardTTL)),
//		delivery.WithConfig(cfg),
//	)
//	outcome, err := orch.Deliver(ctx, n)
//
// Transient provider errors consume one unit of the notification's retry
// budget and schedule a redelivery job with exponential backoff. When the
// budget is spent the notification fails with a "retries exhausted" reason.
// An open breaker or a saturated bulkhead postpones the attempt without
// touching the budget. Validation and permanent provider errors fail the
// notification immediately.
package delivery
