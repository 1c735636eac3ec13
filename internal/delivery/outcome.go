package delivery

// Outcome summarizes what a single Deliver call did to a notification.
type Outcome string

const (
	// OutcomeDelivered: the provider confirmed delivery synchronously.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeSent: the provider accepted the message, delivery confirmation arrives later.
	OutcomeSent Outcome = "sent"
	// OutcomeDeferred: the notification is scheduled in the future and was left pending.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeRetryScheduled: the attempt failed transiently and a redelivery job exists.
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	// OutcomeFailed: the notification reached the failed state.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped: the notification was not pending or another attempt holds it.
	OutcomeSkipped Outcome = "skipped"
)

func (o Outcome) String() string { return string(o) }
