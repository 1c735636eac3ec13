// Package requestid carries a correlation id through a context.Context.
//
// HTTP requests get theirs from Middleware, which reuses a well-formed
// X-Request-ID header or generates a UUID. Consumed broker messages get a
// deterministic one from ForMessage, so every log line of a redelivered
// message carries the same id as the first attempt.
//
// LoggerExtractor plugs the id into pkg/logger:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
package requestid
