package ingest

import "errors"

var (
	ErrMalformedEnvelope  = errors.New("malformed event envelope")
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrInvalidPayload     = errors.New("invalid event payload")
	ErrTemplate           = errors.New("notification template error")
	ErrNoBrokers          = errors.New("no kafka brokers configured")
	ErrInvalidOffset      = errors.New("initial offset must be oldest or newest")
	ErrBrokersUnavailable = errors.New("kafka brokers unavailable")
)

// IsMalformed reports whether err was caused by the message itself rather
// than by the infrastructure handling it.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrTemplate)
}
