// Package api is the service's HTTP surface: notification queries and
// cancellation, channel preferences, contact exchange, provider delivery
// receipts, health probes and metrics.
//
// Every route is a typed handler (pkg/handler) with its request bound by
// pkg/binder. Domain errors are translated to statuses by mapError.
// Contact exchange routes act on behalf of the user named in the X-User-ID
// header, which the gateway in front of the service is trusted to set.
package api
