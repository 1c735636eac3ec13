package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// contextExtractor extracts string values from context.
// It returns (value, found) where found indicates if extraction succeeded.
type contextExtractor func(context.Context) (string, bool)

// Storage persists and queries audit events.
// Store must commit independently of any caller transaction and must treat an
// event whose ID is already stored as written.
type Storage interface {
	Store(ctx context.Context, event Event) error
	Query(ctx context.Context, criteria Criteria) ([]Event, error)
}

// Logger writes audit events
type Logger struct {
	storage         Storage
	userIDExtractor contextExtractor
	now             func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	l := &Logger{
		storage: storage,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Log records a successful action
func (l *Logger) Log(ctx context.Context, action string, opts ...EventOption) error {
	event := l.newEvent(ctx, action)
	event.Result = ResultSuccess

	return l.store(ctx, event, opts)
}

// LogError records a failed action
func (l *Logger) LogError(ctx context.Context, action string, err error, opts ...EventOption) error {
	event := l.newEvent(ctx, action)
	event.Result = ResultError
	if err != nil {
		event.Error = err.Error()
	}

	return l.store(ctx, event, opts)
}

// Find returns stored events matching criteria.
func (l *Logger) Find(ctx context.Context, criteria Criteria) ([]Event, error) {
	return l.storage.Query(ctx, criteria)
}

// store writes with a context detached from cancellation so a record
// is kept even when the caller gives up right after the action.
func (l *Logger) store(ctx context.Context, event Event, opts []EventOption) error {
	for _, opt := range opts {
		opt(&event)
	}

	if err := event.Validate(); err != nil {
		return err
	}

	return l.storage.Store(context.WithoutCancel(ctx), event)
}

func (l *Logger) newEvent(ctx context.Context, action string) Event {
	event := Event{
		ID:        uuid.New().String(),
		Action:    action,
		CreatedAt: l.now().UTC(),
	}

	if l.userIDExtractor != nil {
		if userID, ok := l.userIDExtractor(ctx); ok {
			event.UserID = userID
		}
	}

	return event
}
