// Package audit records who did what to which resource.
//
// Events are append-only. Logger stamps id, time and result, optionally fills
// the actor from the request context and hands the event to a Storage. The
// write is detached from the caller's cancellation, and storages commit it on
// their own, so a record survives even when the audited operation fails later.
//
//	l := audit.NewLogger(storage)
//	err := l.Log(ctx, "reveal",
//		audit.WithActor(userID),
//		audit.WithResource("contact_request", requestID),
//		audit.WithMetadata("purpose", "match follow-up"),
//	)
package audit
