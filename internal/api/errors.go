package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/handler"
)

var (
	errMissingActor  = handler.NewHTTPError(http.StatusUnauthorized, "missing_actor")
	errBadCallback   = handler.NewHTTPError(http.StatusUnauthorized, "invalid_callback_token")
	errInvalidFilter = handler.NewHTTPError(http.StatusBadRequest, "invalid_filter")
)

// mapError is the handler.ErrorMapper for domain errors. Validation errors
// are left to the built-in rules, which render their field details.
func mapError(err error) (handler.HTTPError, bool) {
	switch {
	case errors.Is(err, notification.ErrNotFound), errors.Is(err, contact.ErrNotFound):
		return handler.ErrNotFound, true
	case errors.Is(err, notification.ErrInvalidTransition), errors.Is(err, contact.ErrInvalidState):
		return handler.NewHTTPError(http.StatusConflict, "invalid_state"), true
	case errors.Is(err, notification.ErrConcurrentUpdate), errors.Is(err, contact.ErrConcurrentUpdate):
		return handler.NewHTTPError(http.StatusConflict, "concurrent_update"), true
	case errors.Is(err, contact.ErrForbidden):
		return handler.NewHTTPError(http.StatusForbidden, "forbidden"), true
	case errors.Is(err, contact.ErrExpired):
		return handler.NewHTTPError(http.StatusGone, "expired"), true
	case errors.Is(err, contact.ErrAuditWrite):
		return handler.ErrServiceUnavailable, true
	}
	return handler.HTTPError{}, false
}
