package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifier/pkg/handler"
	"github.com/dmitrymomot/notifier/pkg/logger"
)

// statusCallback is the form a messaging provider posts when a message
// changes state.
type statusCallback struct {
	MessageSid    string `form:"MessageSid"`
	MessageStatus string `form:"MessageStatus"`
	ErrorCode     string `form:"ErrorCode"`
	ErrorMessage  string `form:"ErrorMessage"`
}

func (a *API) messagingStatus(ctx handler.Context, req statusCallback) handler.Response {
	if req.MessageSid == "" {
		return handler.Fail(handler.NewHTTPError(http.StatusBadRequest, "missing_message_sid"))
	}

	log := a.logger.With(logger.MessageID(req.MessageSid), logger.Status(req.MessageStatus))

	switch req.MessageStatus {
	case "delivered", "read":
		if _, err := a.notifications.ConfirmDelivery(ctx, req.MessageSid); err != nil {
			return handler.Fail(err)
		}
	case "failed", "undelivered":
		if _, err := a.notifications.ConfirmFailure(ctx, req.MessageSid, failureReason(req)); err != nil {
			return handler.Fail(err)
		}
	default:
		// intermediate states carry nothing to record
		log.DebugContext(ctx, "ignoring provider status")
		return handler.Empty()
	}

	log.InfoContext(ctx, "provider receipt applied", slog.String("error_code", req.ErrorCode))
	return handler.Empty()
}

func failureReason(req statusCallback) string {
	reason := "provider reported " + req.MessageStatus
	switch {
	case req.ErrorCode != "" && req.ErrorMessage != "":
		reason = fmt.Sprintf("%s: %s (code %s)", reason, req.ErrorMessage, req.ErrorCode)
	case req.ErrorCode != "":
		reason = fmt.Sprintf("%s (code %s)", reason, req.ErrorCode)
	}
	return reason
}

// requireToken rejects callbacks without the shared token. An empty token
// disables the check.
func requireToken[R any](token string) handler.Decorator[handler.Context, R] {
	return func(next handler.HandlerFunc[handler.Context, R]) handler.HandlerFunc[handler.Context, R] {
		if token == "" {
			return next
		}
		return func(ctx handler.Context, req R) handler.Response {
			got := ctx.Request().URL.Query().Get("token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return handler.Fail(errBadCallback)
			}
			return next(ctx, req)
		}
	}
}
