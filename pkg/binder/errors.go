package binder

import "errors"

var (
	ErrMissingContentType   = errors.New("binder: missing content type")
	ErrUnsupportedMediaType = errors.New("binder: unsupported media type")
	ErrFailedToParseJSON    = errors.New("binder: invalid json body")
	ErrFailedToParseForm    = errors.New("binder: invalid form body")
	ErrFailedToParseQuery   = errors.New("binder: invalid query parameters")
	ErrFailedToParsePath    = errors.New("binder: invalid path parameters")
)
