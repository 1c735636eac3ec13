// Package notification defines the Notification aggregate and its lifecycle.
//
// A notification is created pending and moves through a fixed transition table:
//
//	pending ──send──▶ sent ──deliver──▶ delivered
//	   │               │
//	   ├────fail───────┴──▶ failed
//	   └───cancel──▶ cancelled
//
// delivered, failed and cancelled are terminal. A notification left in sent is
// also a valid final outcome for channels that never confirm delivery.
//
// All mutations go through methods on *Notification; callers never assign
// Status directly. Persistence uses optimistic concurrency: Repository.Update
// takes the status the caller loaded and fails with ErrConcurrentUpdate if the
// stored status has changed since.
//
// # Error Handling
//
// Invalid construction returns an error matching ErrValidation that also carries
// validator.ValidationErrors. Illegal transitions return *TransitionError, which
// matches ErrInvalidTransition and names the operation and current status.
package notification
