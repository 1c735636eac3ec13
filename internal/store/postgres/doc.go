// Package postgres holds the PostgreSQL implementations of the service's
// repositories: notifications, user preferences and contacts, contact
// exchange requests and their keyring, the audit trail, and the durable
// task queue.
//
// Every write that depends on the current state of a row is guarded by an
// expected status in the WHERE clause. A mismatch surfaces as the owning
// package's ErrConcurrentUpdate so callers can tell a lost race from a
// missing row.
package postgres
