package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition       = errors.New("no transition available")
	ErrTransitionRejected = errors.New("transition rejected")
)

// NoTransitionError indicates no transition exists for the given state/event combination.
type NoTransitionError struct {
	State string
	Event string
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.State, e.Event)
}

func (e *NoTransitionError) Is(target error) bool {
	return target == ErrNoTransition
}

// RejectedError indicates a guard refused the transition.
type RejectedError struct {
	State string
	Event string
	Err   error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transition from state '%s' for event '%s' was rejected: %v", e.State, e.Event, e.Err)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrTransitionRejected
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
