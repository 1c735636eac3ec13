package audit

import (
	"errors"
	"time"
)

var (
	ErrEventValidation     = errors.New("audit: invalid event")
	ErrStorageNotAvailable = errors.New("audit: storage unavailable")
)

// EventOption fills event fields before validation.
type EventOption func(*Event)

// WithResource names the record the action touched.
func WithResource(resource, id string) EventOption {
	return func(e *Event) { e.Resource, e.ResourceID = resource, id }
}

// WithActor names the acting user. It wins over the context extractor.
func WithActor(userID string) EventOption {
	return func(e *Event) { e.UserID = userID }
}

func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any, 1)
		}
		e.Metadata[key] = value
	}
}

// WithEventID replaces the generated id. Storages ignore a second event with
// the same id, so a retried action keeps a single record.
func WithEventID(id string) EventOption {
	return func(e *Event) { e.ID = id }
}

func WithResult(r Result) EventOption {
	return func(e *Event) { e.Result = r }
}

// Option configures a Logger.
type Option func(*Logger)

// WithUserIDExtractor fills the actor from the context when no WithActor
// option names one.
func WithUserIDExtractor(fn contextExtractor) Option {
	return func(l *Logger) { l.userIDExtractor = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}
