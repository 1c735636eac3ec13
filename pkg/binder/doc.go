// Package binder fills request structs from HTTP requests.
//
// Each binder reads one source and honours its own struct tag:
//
//   - JSON() decodes application/json bodies (strict, size limited)
//   - Form() reads application/x-www-form-urlencoded bodies via `form` tags
//   - Query() reads URL query parameters via `query` tags
//   - Path(extractor) reads router path parameters via `path` tags
//
// Scalar fields, pointers for optional values, slices (repeated or
// comma-separated values) and time.Time (RFC 3339) are supported.
//
// Binders are combined with handler.WithBinders:
//
//	r.Get("/v1/users/{userID}/notifications", handler.Wrap(list,
//		handler.WithBinders[handler.Context, listRequest](
//			binder.Path(chi.URLParam),
//			binder.Query(),
//		),
//	))
package binder
