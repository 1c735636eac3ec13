package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/binder"
	"github.com/dmitrymomot/notifier/pkg/handler"
	"github.com/dmitrymomot/notifier/pkg/httpserver"
	"github.com/dmitrymomot/notifier/pkg/requestid"
)

// Notifications is the part of the delivery orchestrator the API drives.
type Notifications interface {
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*notification.Notification, error)
	ConfirmDelivery(ctx context.Context, providerMessageID string) (*notification.Notification, error)
	ConfirmFailure(ctx context.Context, providerMessageID, reason string) (*notification.Notification, error)
}

// Contacts is the contact exchange service.
type Contacts interface {
	Create(ctx context.Context, p contact.CreateParams) (*contact.Request, error)
	Approve(ctx context.Context, id uuid.UUID, actorUserID string) (*contact.Request, error)
	Deny(ctx context.Context, id uuid.UUID, actorUserID string) (*contact.Request, error)
	Reveal(ctx context.Context, id uuid.UUID, actorUserID, purpose string) (contact.Payload, error)
}

type Config struct {
	// CallbackToken, when set, must be passed as the token query parameter
	// of provider status callbacks.
	CallbackToken  string        `env:"API_CALLBACK_TOKEN"`
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"10s"`
	ProbeTimeout   time.Duration `env:"API_PROBE_TIMEOUT" envDefault:"2s"`
}

// API holds the dependencies of the HTTP handlers.
type API struct {
	repo          notification.Repository
	prefs         notification.PreferencesStore
	notifications Notifications
	contacts      Contacts

	cfg     Config
	logger  *slog.Logger
	metrics Instrumenter
	checks  []httpserver.Check
	limiter Limiter
	errs    handler.ErrorHandler[handler.Context]
}

// Instrumenter serves metrics and wraps routes to observe them.
type Instrumenter interface {
	Handler() http.Handler
	Instrument(next http.Handler) http.Handler
}

type Option func(*API)

func WithConfig(cfg Config) Option {
	return func(a *API) { a.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithContacts(c Contacts) Option {
	return func(a *API) { a.contacts = c }
}

func WithMetrics(m Instrumenter) Option {
	return func(a *API) { a.metrics = m }
}

// WithRateLimiter limits contact exchange calls per acting user.
func WithRateLimiter(l Limiter) Option {
	return func(a *API) { a.limiter = l }
}

// WithReadinessChecks adds dependencies probed by /health/ready.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(a *API) { a.checks = append(a.checks, checks...) }
}

func New(repo notification.Repository, prefs notification.PreferencesStore, n Notifications, opts ...Option) *API {
	if repo == nil || prefs == nil || n == nil {
		panic("api: repository, preferences and notifications are required")
	}

	a := &API{
		repo:          repo,
		prefs:         prefs,
		notifications: n,
		cfg:           Config{RequestTimeout: 10 * time.Second, ProbeTimeout: 2 * time.Second},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.errs = handler.NewErrorHandler[handler.Context](a.logger, mapError)
	return a
}

// Router builds the route tree.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	if a.metrics != nil {
		r.Use(a.metrics.Instrument)
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(a.logger, a.cfg.ProbeTimeout, a.checks...))

	r.Route("/v1", func(r chi.Router) {
		if a.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(a.cfg.RequestTimeout))
		}

		r.Get("/notifications/{id}", wrap(a, a.getNotification, binder.Path(chi.URLParam)))
		r.Post("/notifications/{id}/cancel", wrap(a, a.cancelNotification, binder.Path(chi.URLParam), optionalJSON()))
		r.Get("/users/{userID}/notifications", wrap(a, a.listNotifications, binder.Path(chi.URLParam), binder.Query()))

		r.Get("/users/{userID}/preferences", wrap(a, a.getPreferences, binder.Path(chi.URLParam)))
		r.Put("/users/{userID}/preferences", wrap(a, a.putPreferences, binder.Path(chi.URLParam), binder.JSON()))
		r.Delete("/users/{userID}/preferences", wrap(a, a.resetPreferences, binder.Path(chi.URLParam)))

		r.Post("/callbacks/messaging/status", handler.Wrap(handler.HandlerFunc[handler.Context, statusCallback](a.messagingStatus),
			handler.WithBinders[handler.Context, statusCallback](binder.Form()),
			handler.WithErrorHandler[handler.Context, statusCallback](a.errs),
			handler.WithDecorators(requireToken[statusCallback](a.cfg.CallbackToken)),
		))

		if a.contacts != nil {
			a.contactRoutes(r)
		}
	})

	return r
}

// wrap adapts a default-context handler with the API error handler.
func wrap[R any](a *API, h func(handler.Context, R) handler.Response, binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(handler.HandlerFunc[handler.Context, R](h),
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](a.errs),
	)
}

// optionalJSON binds a JSON body when one is sent.
func optionalJSON() handler.Bind {
	bind := binder.JSON()
	return func(r *http.Request, v any) error {
		if r.ContentLength == 0 {
			return nil
		}
		return bind(r, v)
	}
}
