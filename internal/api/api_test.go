package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/internal/api"
	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/internal/delivery"
	"github.com/dmitrymomot/notifier/internal/metrics"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/audit"
	"github.com/dmitrymomot/notifier/pkg/httpserver"
	"github.com/dmitrymomot/notifier/pkg/ratelimiter"
)

const callbackToken = "s3cret"

type noRetries struct{}

func (noRetries) ScheduleRedelivery(context.Context, uuid.UUID, time.Time) error { return nil }

type fixture struct {
	repo  *notification.MemoryRepository
	prefs *notification.MemoryPreferences
	h     http.Handler
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := notification.NewMemoryRepository()
	prefs := notification.NewMemoryPreferences()
	orch := delivery.NewOrchestrator(repo, noRetries{}, delivery.WithLogger(log))

	keyring, err := contact.NewKeyring(contact.NewMemoryKeyStore(), bytes.Repeat([]byte("k"), 32), time.Hour)
	require.NoError(t, err)
	contacts := contact.NewService(contact.NewMemoryRepository(), keyring,
		audit.NewLogger(audit.NewMemoryStorage()), contact.WithLogger(log))

	a := api.New(repo, prefs, orch, append([]api.Option{
		api.WithLogger(log),
		api.WithConfig(api.Config{CallbackToken: callbackToken, RequestTimeout: 5 * time.Second, ProbeTimeout: time.Second}),
		api.WithContacts(contacts),
		api.WithMetrics(metrics.New()),
	}, opts...)...)
	return &fixture{repo: repo, prefs: prefs, h: a.Router()}
}

func (f *fixture) seed(t *testing.T, userID string, ch notification.Channel, mutate func(*notification.Notification)) *notification.Notification {
	t.Helper()

	n, err := notification.New(notification.CreateParams{
		UserID:     userID,
		Channel:    ch,
		Title:      "Your post was matched",
		Body:       "Someone is interested in your post.",
		MaxRetries: 3,
	})
	require.NoError(t, err)
	if mutate != nil {
		mutate(n)
	}
	require.NoError(t, f.repo.Create(context.Background(), n))
	return n
}

func sentWith(messageID string) func(*notification.Notification) {
	return func(n *notification.Notification) {
		_ = n.Send()
		n.SetMeta(notification.MetaProviderMessageID, messageID)
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

type call struct {
	method, target, body, contentType, actor string
}

func (f *fixture) do(t *testing.T, c call) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.target, body)
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	} else if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(api.ActorHeader, c.actor)
	}

	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestNotifications(t *testing.T) {
	t.Parallel()

	t.Run("get", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		n := f.seed(t, "u1", notification.ChannelEmail, nil)

		rec, env := f.do(t, call{method: http.MethodGet, target: "/v1/notifications/" + n.ID.String()})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[notification.Notification](t, env.Data)
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, notification.StatusPending, got.Status)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

		rec, env = f.do(t, call{method: http.MethodGet, target: "/v1/notifications/" + uuid.NewString()})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", env.Error.Code)

		rec, env = f.do(t, call{method: http.MethodGet, target: "/v1/notifications/not-a-uuid"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", env.Error.Code)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seed(t, "u1", notification.ChannelEmail, sentWith("SM-a"))
		f.seed(t, "u1", notification.ChannelSMS, nil)
		f.seed(t, "u1", notification.ChannelSMS, nil)
		f.seed(t, "u2", notification.ChannelSMS, nil)

		rec, env := f.do(t, call{method: http.MethodGet, target: "/v1/users/u1/notifications?channel=sms&status=pending"})
		require.Equal(t, http.StatusOK, rec.Code)
		items := decode[[]notification.Notification](t, env.Data)
		assert.Len(t, items, 2)
		for _, n := range items {
			assert.Equal(t, "u1", n.UserID)
			assert.Equal(t, notification.ChannelSMS, n.Channel)
		}

		rec, env = f.do(t, call{method: http.MethodGet, target: "/v1/users/u1/notifications?limit=500&offset=1"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]notification.Notification](t, env.Data), 2)
		assert.Equal(t, float64(notification.MaxListLimit), env.Meta["limit"])
		assert.Equal(t, float64(1), env.Meta["offset"])

		rec, env = f.do(t, call{method: http.MethodGet, target: "/v1/users/nobody/notifications"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, string(env.Data))
	})

	t.Run("list rejects bad filters", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		rec, env := f.do(t, call{method: http.MethodGet, target: "/v1/users/u1/notifications?status=lost"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, env.Error.Details, "status")

		q := url.Values{"from": {"2026-02-01T00:00:00Z"}, "to": {"2026-01-01T00:00:00Z"}}
		rec, _ = f.do(t, call{method: http.MethodGet, target: "/v1/users/u1/notifications?" + q.Encode()})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = f.do(t, call{method: http.MethodGet, target: "/v1/users/u1/notifications?from=last-week"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		n := f.seed(t, "u1", notification.ChannelEmail, nil)
		target := "/v1/notifications/" + n.ID.String() + "/cancel"

		rec, env := f.do(t, call{method: http.MethodPost, target: target, body: `{"reason":"post withdrawn"}`})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[notification.Notification](t, env.Data)
		assert.Equal(t, notification.StatusCancelled, got.Status)
		assert.Equal(t, "post withdrawn", got.Meta(notification.MetaCancelReason))

		rec, env = f.do(t, call{method: http.MethodPost, target: target})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "invalid_state", env.Error.Code)
	})
}

func TestPreferences(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	target := "/v1/users/u1/preferences"

	rec, env := f.do(t, call{method: http.MethodGet, target: target})
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[notification.Preferences](t, env.Data)
	assert.Equal(t, []notification.Channel{notification.ChannelEmail}, p.EnabledChannels())

	rec, env = f.do(t, call{method: http.MethodPut, target: target, body: `{"sms":true,"whatsapp":true}`})
	require.Equal(t, http.StatusOK, rec.Code)
	p = decode[notification.Preferences](t, env.Data)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, []notification.Channel{notification.ChannelSMS, notification.ChannelWhatsApp}, p.EnabledChannels())

	stored, err := f.prefs.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, stored.SMS)

	rec, _ = f.do(t, call{method: http.MethodPut, target: target, body: `{"push":true}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, call{method: http.MethodPut, target: target, body: `sms=true`, contentType: "application/x-www-form-urlencoded"})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec, _ = f.do(t, call{method: http.MethodDelete, target: target})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = f.do(t, call{method: http.MethodGet, target: target})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []notification.Channel{notification.ChannelEmail}, decode[notification.Preferences](t, env.Data).EnabledChannels())
}

func TestMessagingStatusCallback(t *testing.T) {
	t.Parallel()

	post := func(f *fixture, t *testing.T, token string, form url.Values) int {
		target := "/v1/callbacks/messaging/status"
		if token != "" {
			target += "?token=" + token
		}
		rec, _ := f.do(t, call{
			method: http.MethodPost, target: target,
			body: form.Encode(), contentType: "application/x-www-form-urlencoded",
		})
		return rec.Code
	}

	t.Run("delivered receipt", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		n := f.seed(t, "u1", notification.ChannelSMS, sentWith("SM1"))

		code := post(f, t, callbackToken, url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"delivered"}})
		require.Equal(t, http.StatusNoContent, code)

		got, err := f.repo.Get(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusDelivered, got.Status)
		assert.NotNil(t, got.DeliveredAt)

		// a later "read" receipt changes nothing
		code = post(f, t, callbackToken, url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"read"}})
		assert.Equal(t, http.StatusNoContent, code)
	})

	t.Run("failure receipt", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		n := f.seed(t, "u1", notification.ChannelWhatsApp, sentWith("SM2"))

		code := post(f, t, callbackToken, url.Values{
			"MessageSid": {"SM2"}, "MessageStatus": {"undelivered"},
			"ErrorCode": {"63016"}, "ErrorMessage": {"outside the allowed window"},
		})
		require.Equal(t, http.StatusNoContent, code)

		got, err := f.repo.Get(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, got.Status)
		require.NotNil(t, got.FailureReason)
		assert.Contains(t, *got.FailureReason, "63016")
	})

	t.Run("intermediate status is acknowledged", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		n := f.seed(t, "u1", notification.ChannelSMS, sentWith("SM3"))

		code := post(f, t, callbackToken, url.Values{"MessageSid": {"SM3"}, "MessageStatus": {"sending"}})
		assert.Equal(t, http.StatusNoContent, code)

		got, err := f.repo.Get(context.Background(), n.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, got.Status)
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seed(t, "u1", notification.ChannelSMS, sentWith("SM4"))
		delivered := url.Values{"MessageSid": {"SM4"}, "MessageStatus": {"delivered"}}

		assert.Equal(t, http.StatusUnauthorized, post(f, t, "", delivered))
		assert.Equal(t, http.StatusUnauthorized, post(f, t, "guess", delivered))
		assert.Equal(t, http.StatusNotFound, post(f, t, callbackToken,
			url.Values{"MessageSid": {"SM-unknown"}, "MessageStatus": {"delivered"}}))
		assert.Equal(t, http.StatusBadRequest, post(f, t, callbackToken,
			url.Values{"MessageStatus": {"delivered"}}))
	})
}

func TestContactExchange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec, _ := f.do(t, call{method: http.MethodPost, target: "/v1/contact-requests",
		body: `{"owner_user_id":"owner","contact":{"email":"owner@example.com"}}`})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := f.do(t, call{method: http.MethodPost, target: "/v1/contact-requests", actor: "owner",
		body: `{"owner_user_id":"owner","contact":{"email":"owner@example.com"}}`})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, env.Error.Details, "owner_user_id")

	rec, env = f.do(t, call{method: http.MethodPost, target: "/v1/contact-requests", actor: "requester",
		body: `{"owner_user_id":"owner","purpose":"arrange pickup","contact":{"email":"owner@example.com","phone":"+15005550006"}}`})
	require.Equal(t, http.StatusCreated, rec.Code)
	cr := decode[contact.Request](t, env.Data)
	assert.Equal(t, contact.StatusPending, cr.Status)
	base := "/v1/contact-requests/" + cr.ID.String()

	rec, _ = f.do(t, call{method: http.MethodPost, target: base + "/reveal", actor: "requester"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = f.do(t, call{method: http.MethodPost, target: base + "/approve", actor: "requester"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Error.Code)

	rec, env = f.do(t, call{method: http.MethodPost, target: base + "/approve", actor: "owner"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contact.StatusApproved, decode[contact.Request](t, env.Data).Status)

	rec, env = f.do(t, call{method: http.MethodPost, target: base + "/reveal", actor: "requester",
		body: `{"purpose":"arrange pickup"}`})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contact.Payload{Email: "owner@example.com", Phone: "+15005550006"}, decode[contact.Payload](t, env.Data))

	rec, _ = f.do(t, call{method: http.MethodPost, target: base + "/deny", actor: "owner"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, call{method: http.MethodPost, target: "/v1/contact-requests/" + uuid.NewString() + "/approve", actor: "owner"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContactExchange_RateLimited(t *testing.T) {
	t.Parallel()

	bucket, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(),
		ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)
	f := newFixture(t, api.WithRateLimiter(bucket))

	create := call{method: http.MethodPost, target: "/v1/contact-requests", actor: "requester",
		body: `{"owner_user_id":"owner","contact":{"email":"owner@example.com"}}`}

	for _, remaining := range []string{"1", "0"} {
		rec, _ := f.do(t, create)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining, rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec, env := f.do(t, create)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := create
	other.actor = "someone-else"
	rec, _ = f.do(t, other)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t, api.WithReadinessChecks(httpserver.Check{Name: "postgres", Probe: func(context.Context) error {
		return errors.New("too many connections")
	}}))

	rec, _ := f.do(t, call{method: http.MethodGet, target: "/health/live"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, call{method: http.MethodGet, target: "/health/ready"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = f.do(t, call{method: http.MethodGet, target: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notifier_http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), `route="/health/ready"`)
}
