package contact_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifier/internal/contact"
	"github.com/dmitrymomot/notifier/pkg/audit"
	"github.com/dmitrymomot/notifier/pkg/secrets"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type failingAudit struct{ audit.MemoryStorage }

func (f *failingAudit) Store(context.Context, audit.Event) error {
	return audit.ErrStorageNotAvailable
}

// flakyAudit fails the first n writes of action.
type flakyAudit struct {
	*audit.MemoryStorage
	mu     sync.Mutex
	action string
	n      int
}

func (f *flakyAudit) Store(ctx context.Context, e audit.Event) error {
	f.mu.Lock()
	fail := e.Action == f.action && f.n > 0
	if fail {
		f.n--
	}
	f.mu.Unlock()
	if fail {
		return audit.ErrStorageNotAvailable
	}
	return f.MemoryStorage.Store(ctx, e)
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids map[uuid.UUID]time.Time
}

func (r *recordingScheduler) ScheduleExpiry(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = make(map[uuid.UUID]time.Time)
	}
	r.ids[id] = at
	return nil
}

type fixture struct {
	clock   *clock
	repo    *contact.MemoryRepository
	keys    *contact.MemoryKeyStore
	keyring *contact.Keyring
	audit   *audit.MemoryStorage
	svc     *contact.Service
	sched   *recordingScheduler
}

const grace = 24 * time.Hour

func newFixture(t *testing.T, auditStorage audit.Storage) *fixture {
	t.Helper()

	f := &fixture{
		clock: newClock(),
		repo:  contact.NewMemoryRepository(),
		keys:  contact.NewMemoryKeyStore(),
		audit: audit.NewMemoryStorage(),
		sched: &recordingScheduler{},
	}
	if auditStorage == nil {
		auditStorage = f.audit
	}

	master, err := secrets.GenerateKey()
	require.NoError(t, err)

	f.keyring, err = contact.NewKeyring(f.keys, master, grace, contact.WithKeyringClock(f.clock.Now))
	require.NoError(t, err)

	f.svc = contact.NewService(f.repo, f.keyring,
		audit.NewLogger(auditStorage, audit.WithClock(f.clock.Now)),
		contact.WithClock(f.clock.Now),
		contact.WithRequestTTL(time.Hour),
		contact.WithBatchSize(2),
		contact.WithExpiryScheduler(f.sched),
	)
	return f
}

func (f *fixture) create(t *testing.T) *contact.Request {
	t.Helper()
	r, err := f.svc.Create(context.Background(), contact.CreateParams{
		RequesterUserID: "requester",
		OwnerUserID:     "owner",
		Purpose:         "post match",
		Contact:         contact.Payload{Email: "owner@example.com", Phone: "+4915112345678"},
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) events(t *testing.T, action string, id uuid.UUID) []audit.Event {
	t.Helper()
	events, err := f.audit.Query(context.Background(), audit.Criteria{Action: action, ResourceID: id.String()})
	require.NoError(t, err)
	return events
}

func TestKeyring(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("round trip with current key", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)

		key, err := f.keyring.Current(ctx)
		require.NoError(t, err)

		ct, err := f.keyring.Encrypt(ctx, "secret", key.ID)
		require.NoError(t, err)
		pt, err := f.keyring.Decrypt(ctx, ct, key.ID)
		require.NoError(t, err)
		assert.Equal(t, "secret", pt)
	})

	t.Run("retired key decrypts within grace only", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)

		old, err := f.keyring.Current(ctx)
		require.NoError(t, err)
		ct, err := f.keyring.Encrypt(ctx, "secret", old.ID)
		require.NoError(t, err)

		next, err := f.keyring.Rotate(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, old.ID, next.ID)

		current, err := f.keyring.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, next.ID, current.ID)

		f.clock.Advance(grace - time.Minute)
		pt, err := f.keyring.Decrypt(ctx, ct, old.ID)
		require.NoError(t, err)
		assert.Equal(t, "secret", pt)

		f.clock.Advance(time.Minute)
		_, err = f.keyring.Decrypt(ctx, ct, old.ID)
		assert.ErrorIs(t, err, contact.ErrKeyRetired)
		assert.ErrorIs(t, err, contact.ErrEncryption)
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)

		_, err := f.keyring.Decrypt(ctx, "AAAA", "missing")
		assert.ErrorIs(t, err, contact.ErrKeyNotFound)
		assert.ErrorIs(t, err, contact.ErrEncryption)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)

		first, err := f.keyring.Current(ctx)
		require.NoError(t, err)
		ct, err := f.keyring.Encrypt(ctx, "secret", first.ID)
		require.NoError(t, err)

		second, err := f.keyring.Rotate(ctx)
		require.NoError(t, err)
		_, err = f.keyring.Decrypt(ctx, ct, second.ID)
		assert.ErrorIs(t, err, contact.ErrEncryption)
	})

	t.Run("invalid master key", func(t *testing.T) {
		t.Parallel()
		_, err := contact.NewKeyring(contact.NewMemoryKeyStore(), []byte("short"), grace)
		assert.ErrorIs(t, err, contact.ErrEncryption)
	})
}

func TestService_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("approve then reveal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		r := f.create(t)

		assert.Equal(t, contact.StatusPending, r.Status)
		assert.Equal(t, f.clock.Now().Add(time.Hour), r.ExpiresAt)
		assert.Equal(t, r.ExpiresAt, f.sched.ids[r.ID])
		assert.Len(t, f.events(t, contact.ActionCreate, r.ID), 1)

		_, err := f.svc.Reveal(ctx, r.ID, "requester", "call")
		assert.ErrorIs(t, err, contact.ErrInvalidState)

		approved, err := f.svc.Approve(ctx, r.ID, "owner")
		require.NoError(t, err)
		assert.Equal(t, contact.StatusApproved, approved.Status)

		p, err := f.svc.Reveal(ctx, r.ID, "requester", "call")
		require.NoError(t, err)
		assert.Equal(t, "owner@example.com", p.Email)
		assert.Equal(t, "+4915112345678", p.Phone)

		reveals := f.events(t, contact.ActionReveal, r.ID)
		require.Len(t, reveals, 1)
		assert.Equal(t, "requester", reveals[0].UserID)
		assert.Equal(t, "call", reveals[0].Metadata["purpose"])
	})

	t.Run("only owner decides and only requester reveals", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		r := f.create(t)

		_, err := f.svc.Approve(ctx, r.ID, "requester")
		assert.ErrorIs(t, err, contact.ErrForbidden)

		_, err = f.svc.Approve(ctx, r.ID, "owner")
		require.NoError(t, err)

		_, err = f.svc.Reveal(ctx, r.ID, "owner", "curious")
		assert.ErrorIs(t, err, contact.ErrForbidden)

		denied := f.events(t, contact.ActionReveal, r.ID)
		require.Len(t, denied, 1)
		assert.Equal(t, audit.ResultError, denied[0].Result)
	})

	t.Run("deny purges payload", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		r := f.create(t)

		denied, err := f.svc.Deny(ctx, r.ID, "owner")
		require.NoError(t, err)
		assert.Equal(t, contact.StatusDenied, denied.Status)

		stored, err := f.repo.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.EncryptedPayload)
		assert.NotNil(t, stored.PurgedAt)

		_, err = f.svc.Approve(ctx, r.ID, "owner")
		assert.ErrorIs(t, err, contact.ErrInvalidState)
	})

	t.Run("expired request cannot be revealed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		r := f.create(t)
		_, err := f.svc.Approve(ctx, r.ID, "owner")
		require.NoError(t, err)

		f.clock.Advance(time.Hour)
		_, err = f.svc.Reveal(ctx, r.ID, "requester", "call")
		assert.ErrorIs(t, err, contact.ErrExpired)
	})

	t.Run("reveal refused when audit cannot be written", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		r := f.create(t)
		_, err := f.svc.Approve(ctx, r.ID, "owner")
		require.NoError(t, err)

		failing := contact.NewService(f.repo, f.keyring, audit.NewLogger(&failingAudit{}),
			contact.WithClock(f.clock.Now))
		_, err = failing.Reveal(ctx, r.ID, "requester", "call")
		assert.ErrorIs(t, err, contact.ErrAuditWrite)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)

		_, err := f.svc.Create(ctx, contact.CreateParams{RequesterUserID: "u1", OwnerUserID: "u1"})
		assert.ErrorIs(t, err, contact.ErrValidation)

		_, err = f.svc.Create(ctx, contact.CreateParams{
			RequesterUserID: "u1", OwnerUserID: "u2",
			Contact: contact.Payload{Phone: "0151"},
		})
		assert.ErrorIs(t, err, contact.ErrValidation)
	})

	t.Run("unknown request", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		_, err := f.svc.Approve(ctx, uuid.New(), "owner")
		assert.ErrorIs(t, err, contact.ErrNotFound)
	})
}

func TestService_Expiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("cleanup purges and audits exactly once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)

		reqs := []*contact.Request{f.create(t), f.create(t), f.create(t)}
		_, err := f.svc.Approve(ctx, reqs[1].ID, "owner")
		require.NoError(t, err)

		n, err := f.svc.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		f.clock.Advance(time.Hour)

		n, err = f.svc.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = f.svc.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		for _, r := range reqs {
			require.NoError(t, f.svc.Expire(ctx, r.ID))

			stored, err := f.repo.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, contact.StatusExpired, stored.Status)
			assert.Nil(t, stored.EncryptedPayload)
			assert.NotNil(t, stored.PurgedAt)

			expires := f.events(t, contact.ActionExpire, r.ID)
			require.Len(t, expires, 1)
			assert.Equal(t, contact.SystemActor, expires[0].UserID)
		}
	})

	t.Run("failed expire record is written on retry", func(t *testing.T) {
		t.Parallel()
		storage := &flakyAudit{MemoryStorage: audit.NewMemoryStorage(), action: contact.ActionExpire, n: 1}
		f := newFixture(t, storage)
		r := f.create(t)
		f.clock.Advance(time.Hour)

		err := f.svc.Expire(ctx, r.ID)
		require.ErrorIs(t, err, contact.ErrAuditWrite)

		stored, err := f.repo.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.PurgedAt)

		require.NoError(t, f.svc.Expire(ctx, r.ID))
		n, err := f.svc.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		stored, err = f.repo.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.PurgedAt)

		events, err := storage.Query(ctx, audit.Criteria{Action: contact.ActionExpire, ResourceID: r.ID.String()})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("expire before due is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		r := f.create(t)

		require.NoError(t, f.svc.Expire(ctx, r.ID))
		stored, err := f.repo.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, contact.StatusPending, stored.Status)
		assert.Empty(t, f.events(t, contact.ActionExpire, r.ID))
	})
}

func TestService_RotateKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil)

	r := f.create(t)
	_, err := f.svc.Approve(ctx, r.ID, "owner")
	require.NoError(t, err)
	firstKey := r.KeyID

	res, err := f.svc.RotateKeys(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, firstKey, res.KeyID)
	assert.Equal(t, 1, res.Reencrypted)
	assert.Empty(t, res.Dropped)

	stored, err := f.repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, res.KeyID, stored.KeyID)

	p, err := f.svc.Reveal(ctx, r.ID, "requester", "call")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", p.Email)

	f.clock.Advance(grace)
	second, err := f.svc.RotateKeys(ctx)
	require.NoError(t, err)
	assert.Contains(t, second.Dropped, firstKey)

	_, err = f.keys.Get(ctx, firstKey)
	assert.True(t, errors.Is(err, contact.ErrKeyNotFound))
}
