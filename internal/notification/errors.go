package notification

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("invalid notification")
	ErrInvalidTransition    = errors.New("invalid notification status transition")
	ErrNotReadyToSend       = errors.New("notification is scheduled in the future")
	ErrRetryBudgetExhausted = errors.New("notification retry budget exhausted")
	ErrNotFound             = errors.New("notification not found")
	ErrConcurrentUpdate     = errors.New("notification was modified concurrently")
	ErrAlreadyExists        = errors.New("notification already exists")

	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownStatus  = errors.New("unknown status")
)

// TransitionError reports an operation attempted from a status that does not allow it.
type TransitionError struct {
	Op     string
	Status Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s notification in status %q", e.Op, e.Status)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
