// Package statemachine provides a declarative transition table for finite state
// machines whose current state lives on the entity rather than in the machine.
//
// A Machine is built once, usually as a package-level variable, and is then
// consulted by entities that own their own state field:
//
//	var lifecycle = statemachine.New[Status, Event]().
//		Permit(StatusPending, EventSend, StatusSent).
//		Permit(StatusSent, EventDeliver, StatusDelivered)
//
//	next, err := lifecycle.Fire(n.Status, EventSend)
//
// Transitions may carry guards. All guards must pass for the transition to be
// taken; a guard returning an error rejects the transition with that error.
//
// # Concurrency
//
// A Machine is immutable after construction and safe for concurrent use.
// Permit must not be called after the machine is shared between goroutines.
//
// # Error Handling
//
// Fire returns *NoTransitionError (matching ErrNoTransition) when the table has no
// entry for the state/event pair and *RejectedError (matching ErrTransitionRejected)
// when a guard refuses it.
package statemachine
