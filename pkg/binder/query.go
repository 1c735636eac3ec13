package binder

import "net/http"

// Query creates a binder for URL query parameters.
//
// Supported struct tags:
//   - `query:"name"` binds to parameter "name"
//   - `query:"-"` skips the field
//
// Repeated parameters and comma-separated values both fill slices:
// ?status=sent&status=failed and ?status=sent,failed are equivalent.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrFailedToParseQuery)
	}
}
