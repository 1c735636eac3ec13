package binder

import (
	"fmt"
	"mime"
	"net/http"
)

// DefaultMaxFormSize caps urlencoded request bodies.
const DefaultMaxFormSize = 1 << 20 // 1 MB

// Form creates a binder for application/x-www-form-urlencoded bodies.
//
// Supported struct tags:
//   - `form:"name"` binds to form field "name"
//   - `form:"-"` skips the field
//
// Only body values are bound; query parameters are left to Query.
func Form() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if err := requireMediaType(r, "application/x-www-form-urlencoded"); err != nil {
			return err
		}

		r.Body = http.MaxBytesReader(nil, r.Body, DefaultMaxFormSize)
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("%w: %v", ErrFailedToParseForm, err)
		}
		return bindToStruct(v, "form", r.PostForm, ErrFailedToParseForm)
	}
}

func requireMediaType(r *http.Request, expected string) error {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return fmt.Errorf("%w: expected %s", ErrMissingContentType, expected)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedMediaType, err)
	}
	if mediaType != expected {
		return fmt.Errorf("%w: got %s, expected %s", ErrUnsupportedMediaType, mediaType, expected)
	}
	return nil
}
