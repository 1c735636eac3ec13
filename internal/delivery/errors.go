package delivery

import "errors"

var (
	ErrNilNotification = errors.New("notification is nil")
	ErrNoSender        = errors.New("no sender registered for channel")
	ErrScheduleRetry   = errors.New("failed to schedule redelivery")
	ErrPersist         = errors.New("failed to persist notification")
	ErrGuard           = errors.New("delivery guard unavailable")
)
