// Package provider contains the channel adapters that hand messages to external
// delivery services.
//
// Every adapter implements Sender. Adapters translate provider specific status
// codes into a closed set of error kinds so that callers never inspect raw HTTP
// codes:
//
//	validation      malformed request or destination, permanent
//	authentication  bad or missing credentials, permanent
//	rate_limited    provider throttling, retryable
//	server_error    provider side failure, retryable
//	network_error   transport failure or timeout, retryable
//
// Adapters do not retry and do not guard themselves with circuit breakers; the
// delivery orchestrator wraps them.
//
// # Adapters
//
//   - Messaging: SMS and WhatsApp over a Twilio-compatible form API. Reports
//     submission only; delivery is confirmed later through a status callback.
//   - Postmark: transactional email. Reports synchronous delivery.
//   - DiskSender: development email adapter that writes HTML and JSON files.
package provider
