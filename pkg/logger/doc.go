// Package logger builds the service's *slog.Logger and holds the attribute
// helpers used across packages so field names stay consistent in every log line.
//
// New applies functional options on top of production defaults (JSON, info).
// APP_ENV selects a preset: development logs text at debug, staging and
// production log JSON at info. Registered ContextExtractor callbacks run on
// every record to add request-scoped values such as the request id.
//
//	log := logger.NewFromConfig(cfg.Logger,
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "notification delivered",
//		logger.NotificationID(n.ID),
//		logger.Channel(n.Channel),
//		logger.Duration(time.Since(start)),
//	)
//
// Error, Errors, UserID and MessageID return an empty attribute for zero input,
// so they can be passed unconditionally.
package logger
