package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifier/pkg/binder"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/requestid"
	"github.com/dmitrymomot/notifier/pkg/validator"
)

// ErrorMapper translates application errors into HTTP errors. It reports
// false for errors it does not recognise.
type ErrorMapper func(err error) (HTTPError, bool)

type errorInfo struct {
	status  int
	code    string
	message string
	details map[string][]string
}

// NewErrorHandler returns an ErrorHandler that renders errors as JSON
// envelopes. Mappers are consulted in order before the built-in rules.
// Server errors are logged at error level and their message is withheld
// from the client.
func NewErrorHandler[C Context](log *slog.Logger, mappers ...ErrorMapper) ErrorHandler[C] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx C, err error) {
		r := ctx.Request()
		info := classifyError(err, mappers)

		level := slog.LevelWarn
		if info.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.Error(err),
			slog.Int("status_code", info.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		var opts []JSONOption
		if id := requestid.FromContext(r.Context()); id != "" {
			opts = append(opts, WithJSONMeta(map[string]any{"request_id": id}))
		}
		resp := JSONError(info.status, &ErrorDetail{
			Code:    info.code,
			Message: info.message,
			Details: info.details,
		}, opts...)
		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.WarnContext(r.Context(), "failed to write error response", logger.Error(renderErr))
		}
	}
}

func classifyError(err error, mappers []ErrorMapper) errorInfo {
	for _, m := range mappers {
		if httpErr, ok := m(err); ok {
			return fromHTTPError(httpErr, err)
		}
	}

	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
		return errorInfo{
			status:  http.StatusUnprocessableEntity,
			code:    "validation_error",
			message: verrs.Error(),
			details: verrs.Map(),
		}
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return fromHTTPError(httpErr, err)
	}

	if errors.Is(err, ErrBinding) {
		if errors.Is(err, binder.ErrUnsupportedMediaType) || errors.Is(err, binder.ErrMissingContentType) {
			return fromHTTPError(ErrUnsupportedMedia, err)
		}
		return fromHTTPError(ErrBadRequest, err)
	}

	return fromHTTPError(ErrInternalServerError, err)
}

func fromHTTPError(httpErr HTTPError, cause error) errorInfo {
	info := errorInfo{status: httpErr.Code, code: httpErr.Key, message: cause.Error()}
	if httpErr.Code >= http.StatusInternalServerError {
		info.message = http.StatusText(httpErr.Code)
	}
	return info
}
