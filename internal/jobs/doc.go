// Package jobs binds the service's deferred operations to the task queue.
//
// Each Operation has its own payload type. Scheduler checks the payload
// against the operation before anything is enqueued and derives the
// uniqueness key that keeps concurrent triggers from producing duplicate jobs.
// Register wires the handlers into a queue.Worker and the periodic operations
// into a queue.Scheduler.
package jobs
