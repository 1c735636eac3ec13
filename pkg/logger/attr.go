package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// UserID records the user identifier under the key "user_id".
// An empty id yields an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// NotificationID records the notification identifier.
func NotificationID(id any) slog.Attr {
	return slog.Any("notification_id", id)
}

// Channel records a delivery channel.
func Channel(ch any) slog.Attr {
	return slog.Any("channel", ch)
}

// Status records an entity status.
func Status(s any) slog.Attr {
	return slog.Any("status", s)
}

// Provider records the provider name, which is also the breaker and bulkhead key.
func Provider(name string) slog.Attr {
	return slog.String("provider", name)
}

// TaskID records a queue task identifier.
func TaskID(id any) slog.Attr {
	return slog.Any("task_id", id)
}

// Operation records a scheduled job operation.
func Operation(op any) slog.Attr {
	return slog.Any("operation", op)
}

// ContactRequestID records a contact exchange request identifier.
func ContactRequestID(id any) slog.Attr {
	return slog.Any("contact_request_id", id)
}

// KeyID records an encryption key identifier.
func KeyID(id string) slog.Attr {
	return slog.String("key_id", id)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Topic records a message bus topic.
func Topic(name string) slog.Attr {
	return slog.String("topic", name)
}

// MessageID records the provider message identifier.
// An empty id yields an empty Attr.
func MessageID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("message_id", id)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
