package provider

import "context"

// Message is a single outbound message.
type Message struct {
	To      string
	Subject string
	Body    string
	// Tag groups messages in provider dashboards, e.g. the triggering event type.
	Tag string
}

// Receipt is the provider's acknowledgement of a sent message.
type Receipt struct {
	MessageID string
	// Delivered is true when the provider confirms delivery synchronously.
	Delivered bool
}

// Sender is implemented by every channel adapter.
type Sender interface {
	// Name identifies the downstream service, used for circuit breakers and bulkheads.
	Name() string
	Send(ctx context.Context, msg Message) (Receipt, error)
	HealthCheck(ctx context.Context) error
	ValidateDestination(to string) error
	ValidateMessage(msg Message) error
}
