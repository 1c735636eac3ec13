// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a Context and a request struct filled by binders
// (see pkg/binder) and returns a Response:
//
//	type getRequest struct {
//		ID uuid.UUID `path:"id"`
//	}
//
//	get := func(ctx handler.Context, req getRequest) handler.Response {
//		n, err := repo.Get(ctx, req.ID)
//		if err != nil {
//			return handler.Fail(err)
//		}
//		return handler.JSON(n)
//	}
//
//	r.Get("/v1/notifications/{id}", handler.Wrap(get,
//		handler.WithBinders[handler.Context, getRequest](binder.Path(chi.URLParam)),
//		handler.WithErrorHandler[handler.Context, getRequest](errs),
//	))
//
// Binding and rendering failures go to the configured ErrorHandler.
// NewErrorHandler renders them as JSON envelopes and logs them at a level
// derived from the status code.
package handler
