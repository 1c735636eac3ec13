package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/pkg/binder"
	"github.com/dmitrymomot/notifier/pkg/handler"
)

// ActorHeader names the user a contact exchange call acts for.
const ActorHeader = "X-User-ID"

// actorContext is the handler context of contact exchange routes.
type actorContext struct {
	handler.Context
	ActorID string
}

func newActorContext(w http.ResponseWriter, r *http.Request) actorContext {
	return actorContext{Context: handler.NewContext(w, r), ActorID: r.Header.Get(ActorHeader)}
}

func requireActor[R any](next handler.HandlerFunc[actorContext, R]) handler.HandlerFunc[actorContext, R] {
	return func(ctx actorContext, req R) handler.Response {
		if ctx.ActorID == "" {
			return handler.Fail(errMissingActor)
		}
		return next(ctx, req)
	}
}

func actorRoute[R any](a *API, h func(actorContext, R) handler.Response, binders ...handler.Bind) http.HandlerFunc {
	errs := a.errs
	return handler.Wrap(handler.HandlerFunc[actorContext, R](h),
		handler.WithContextFactory[actorContext, R](newActorContext),
		handler.WithBinders[actorContext, R](binders...),
		handler.WithErrorHandler[actorContext, R](func(ctx actorContext, err error) { errs(ctx.Context, err) }),
		handler.WithDecorators[actorContext, R](requireActor[R], rateLimit[R](a.limiter, a.logger)),
	)
}

func (a *API) contactRoutes(r chi.Router) {
	r.Post("/contact-requests", actorRoute(a, a.createContactRequest, binder.JSON()))
	r.Post("/contact-requests/{id}/approve", actorRoute(a, a.approveContactRequest, binder.Path(chi.URLParam)))
	r.Post("/contact-requests/{id}/deny", actorRoute(a, a.denyContactRequest, binder.Path(chi.URLParam)))
	r.Post("/contact-requests/{id}/reveal", actorRoute(a, a.revealContact, binder.Path(chi.URLParam), optionalJSON()))
}

type createContactRequest struct {
	OwnerUserID string          `json:"owner_user_id"`
	Purpose     string          `json:"purpose"`
	Contact     contact.Payload `json:"contact"`
}

func (a *API) createContactRequest(ctx actorContext, req createContactRequest) handler.Response {
	cr, err := a.contacts.Create(ctx, contact.CreateParams{
		RequesterUserID: ctx.ActorID,
		OwnerUserID:     req.OwnerUserID,
		Purpose:         req.Purpose,
		Contact:         req.Contact,
	})
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(cr, handler.WithJSONStatus(http.StatusCreated))
}

type contactRequestID struct {
	ID uuid.UUID `path:"id"`
}

func (a *API) approveContactRequest(ctx actorContext, req contactRequestID) handler.Response {
	cr, err := a.contacts.Approve(ctx, req.ID, ctx.ActorID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(cr)
}

func (a *API) denyContactRequest(ctx actorContext, req contactRequestID) handler.Response {
	cr, err := a.contacts.Deny(ctx, req.ID, ctx.ActorID)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(cr)
}

type revealRequest struct {
	ID      uuid.UUID `path:"id" json:"-"`
	Purpose string    `path:"-" json:"purpose"`
}

func (a *API) revealContact(ctx actorContext, req revealRequest) handler.Response {
	p, err := a.contacts.Reveal(ctx, req.ID, ctx.ActorID, req.Purpose)
	if err != nil {
		return handler.Fail(err)
	}
	return handler.JSON(p)
}
