package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/audit"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/validator"
)

// ExpiryScheduler arranges for Service.Expire to run for a request at a given time.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, requestID uuid.UUID, at time.Time) error
}

// Service owns contact requests: it is the only component that decrypts
// payloads or writes contact audit records.
type Service struct {
	repo      Repository
	keyring   *Keyring
	audit     *audit.Logger
	scheduler ExpiryScheduler
	ttl       time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithExpiryScheduler(s ExpiryScheduler) ServiceOption {
	return func(svc *Service) { svc.scheduler = s }
}

func WithRequestTTL(d time.Duration) ServiceOption {
	return func(svc *Service) {
		if d > 0 {
			svc.ttl = d
		}
	}
}

func WithBatchSize(n int) ServiceOption {
	return func(svc *Service) {
		if n > 0 {
			svc.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(svc *Service) { svc.logger = l }
}

func NewService(repo Repository, keyring *Keyring, auditLog *audit.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		keyring:   keyring,
		audit:     auditLog,
		ttl:       72 * time.Hour,
		batchSize: 100,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("contact"))
	return s
}

// CreateParams describes a new contact exchange.
type CreateParams struct {
	RequesterUserID string
	OwnerUserID     string
	Purpose         string
	Contact         Payload
}

// Create stores a pending request with the owner's contact data encrypted
// under the current key and schedules its expiry.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Request, error) {
	if err := validator.Apply(
		validator.RequiredString("requester_user_id", p.RequesterUserID),
		validator.RequiredString("owner_user_id", p.OwnerUserID),
		validator.NotEqual("owner_user_id", p.OwnerUserID, p.RequesterUserID),
		validator.When(p.Contact.Email == "" && p.Contact.Phone == "",
			validator.RequiredString("contact", "")),
		validator.When(p.Contact.Email != "", validator.ValidEmail("contact.email", p.Contact.Email)),
		validator.When(p.Contact.Phone != "", validator.ValidE164Phone("contact.phone", p.Contact.Phone)),
	); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	key, err := s.keyring.Current(ctx)
	if err != nil {
		return nil, err
	}

	plain, err := p.Contact.marshal()
	if err != nil {
		return nil, errors.Join(ErrEncryption, err)
	}
	sealed, err := s.keyring.Encrypt(ctx, plain, key.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &Request{
		ID:               uuid.New(),
		RequesterUserID:  p.RequesterUserID,
		OwnerUserID:      p.OwnerUserID,
		Purpose:          p.Purpose,
		EncryptedPayload: &sealed,
		KeyID:            key.ID,
		Status:           StatusPending,
		ExpiresAt:        now.Add(s.ttl),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create contact request: %w", err)
	}

	if err := s.record(ctx, ActionCreate, p.RequesterUserID, r.ID, p.Purpose); err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleExpiry(ctx, r.ID, r.ExpiresAt); err != nil {
			// the periodic cleanup still purges it
			s.logger.WarnContext(ctx, "failed to schedule contact expiry",
				logger.ContactRequestID(r.ID), logger.Error(err))
		}
	}

	return r, nil
}

// Approve lets the owner release the contact data to the requester.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorUserID string) (*Request, error) {
	return s.decide(ctx, id, actorUserID, ActionApprove, StatusApproved)
}

// Deny refuses the request and purges the payload.
func (s *Service) Deny(ctx context.Context, id uuid.UUID, actorUserID string) (*Request, error) {
	return s.decide(ctx, id, actorUserID, ActionDeny, StatusDenied)
}

func (s *Service) decide(ctx context.Context, id uuid.UUID, actor, action string, to Status) (*Request, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor != r.OwnerUserID {
		s.recordError(ctx, action, actor, r.ID, ErrForbidden)
		return nil, ErrForbidden
	}
	if r.Status != StatusPending {
		return nil, &StateError{Action: action, Status: r.Status}
	}

	now := s.now().UTC()
	if r.ExpiredAt(now) {
		return nil, ErrExpired
	}

	if to == StatusDenied {
		r.purge(now, StatusDenied)
	} else {
		r.Status = to
	}

	if err := s.repo.Update(ctx, r, StatusPending); err != nil {
		return nil, err
	}
	if err := s.record(ctx, action, actor, r.ID, ""); err != nil {
		return nil, err
	}
	return r, nil
}

// Reveal returns the decrypted contact data to the requester of an approved,
// unexpired request. The audit record is written before decryption; when it
// cannot be written nothing is revealed.
func (s *Service) Reveal(ctx context.Context, id uuid.UUID, actorUserID, purpose string) (Payload, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return Payload{}, err
	}

	if actorUserID != r.RequesterUserID {
		s.recordError(ctx, ActionReveal, actorUserID, r.ID, ErrForbidden)
		return Payload{}, ErrForbidden
	}
	if r.Status != StatusApproved {
		return Payload{}, &StateError{Action: ActionReveal, Status: r.Status}
	}
	if r.ExpiredAt(s.now()) || r.Purged() {
		return Payload{}, ErrExpired
	}

	if err := s.record(ctx, ActionReveal, actorUserID, r.ID, purpose); err != nil {
		return Payload{}, err
	}

	plain, err := s.keyring.Decrypt(ctx, *r.EncryptedPayload, r.KeyID)
	if err != nil {
		s.recordError(ctx, ActionReveal, actorUserID, r.ID, err)
		return Payload{}, err
	}

	p, err := unmarshalPayload(plain)
	if err != nil {
		return Payload{}, errors.Join(ErrEncryption, err)
	}
	return p, nil
}

// Expire purges a request whose expiry has passed. It is idempotent: an already
// purged request is left alone and repeated calls share one expire record.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) error {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.purge(ctx, r)
	return err
}

// CleanupExpired purges every request past its expiry and returns how many it purged.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	purged := 0
	for {
		batch, err := s.repo.ListExpired(ctx, s.now().UTC(), s.batchSize)
		if err != nil {
			return purged, fmt.Errorf("list expired contact requests: %w", err)
		}

		progressed := false
		for _, r := range batch {
			ok, err := s.purge(ctx, r)
			if err != nil {
				return purged, err
			}
			if ok {
				purged++
				progressed = true
			}
		}

		if len(batch) < s.batchSize || !progressed {
			break
		}
	}

	if purged > 0 {
		s.logger.InfoContext(ctx, "expired contact requests purged", slog.Int("count", purged))
	}
	return purged, nil
}

// purge reports whether this call purged r. The expire record is written
// before the purge under an id derived from the request, so a retry after a
// failed write or update still ends with exactly one record.
func (s *Service) purge(ctx context.Context, r *Request) (bool, error) {
	now := s.now().UTC()
	if r.Purged() || !r.ExpiredAt(now) {
		return false, nil
	}

	if err := s.record(ctx, ActionExpire, SystemActor, r.ID, "", audit.WithEventID(expireEventID(r.ID))); err != nil {
		return false, err
	}

	expected := r.Status
	r.purge(now, StatusExpired)

	if err := s.repo.Update(ctx, r, expected); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			return false, nil
		}
		return false, fmt.Errorf("purge contact request %s: %w", r.ID, err)
	}
	return true, nil
}

func expireEventID(id uuid.UUID) string {
	return uuid.NewSHA1(id, []byte(ActionExpire)).String()
}

// RotationResult summarises a key rotation.
type RotationResult struct {
	KeyID       string
	Reencrypted int
	Dropped     []string
}

// RotateKeys makes a new current key, re-encrypts live requests under it and
// drops retired keys that are past their grace period and no longer referenced.
func (s *Service) RotateKeys(ctx context.Context) (RotationResult, error) {
	next, err := s.keyring.Rotate(ctx)
	if err != nil {
		return RotationResult{}, err
	}
	res := RotationResult{KeyID: next.ID}

	keys, err := s.keyring.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list contact keys: %w", err)
	}

	for _, k := range keys {
		if k.ID == next.ID {
			continue
		}
		n, err := s.reencrypt(ctx, k.ID, next.ID)
		res.Reencrypted += n
		if err != nil {
			return res, err
		}
	}

	expired, err := s.keyring.Expired(ctx)
	if err != nil {
		return res, fmt.Errorf("list expired contact keys: %w", err)
	}
	for _, k := range expired {
		refs, err := s.repo.CountByKey(ctx, k.ID)
		if err != nil {
			return res, fmt.Errorf("count references to key %s: %w", k.ID, err)
		}
		if refs > 0 {
			continue
		}
		if err := s.keyring.Drop(ctx, k.ID); err != nil {
			return res, fmt.Errorf("drop contact key %s: %w", k.ID, err)
		}
		res.Dropped = append(res.Dropped, k.ID)
	}

	s.logger.InfoContext(ctx, "contact keys rotated",
		logger.KeyID(next.ID),
		slog.Int("reencrypted", res.Reencrypted),
		slog.Int("dropped", len(res.Dropped)))

	return res, nil
}

func (s *Service) reencrypt(ctx context.Context, fromKey, toKey string) (int, error) {
	done := 0
	for {
		batch, err := s.repo.ListByKey(ctx, fromKey, s.batchSize)
		if err != nil {
			return done, fmt.Errorf("list requests for key %s: %w", fromKey, err)
		}

		progressed := false
		for _, r := range batch {
			plain, err := s.keyring.Decrypt(ctx, *r.EncryptedPayload, fromKey)
			if err != nil {
				if errors.Is(err, ErrKeyRetired) {
					// unreadable now; cleanup purges it at expiry
					s.logger.WarnContext(ctx, "contact request key past grace",
						logger.ContactRequestID(r.ID), logger.KeyID(fromKey))
					continue
				}
				return done, err
			}

			sealed, err := s.keyring.Encrypt(ctx, plain, toKey)
			if err != nil {
				return done, err
			}

			r.EncryptedPayload = &sealed
			r.KeyID = toKey
			if err := s.repo.Update(ctx, r, r.Status); err != nil {
				if errors.Is(err, ErrConcurrentUpdate) {
					continue
				}
				return done, fmt.Errorf("re-encrypt contact request %s: %w", r.ID, err)
			}

			done++
			progressed = true
			if err := s.record(ctx, ActionRekey, SystemActor, r.ID, ""); err != nil {
				return done, err
			}
		}

		if len(batch) < s.batchSize || !progressed {
			return done, nil
		}
	}
}

func (s *Service) record(ctx context.Context, action, actor string, id uuid.UUID, purpose string, extra ...audit.EventOption) error {
	opts := append([]audit.EventOption{
		audit.WithActor(actor),
		audit.WithResource(AuditResource, id.String()),
	}, extra...)
	if purpose != "" {
		opts = append(opts, audit.WithMetadata("purpose", purpose))
	}

	if err := s.audit.Log(ctx, action, opts...); err != nil {
		return errors.Join(ErrAuditWrite, err)
	}
	return nil
}

func (s *Service) recordError(ctx context.Context, action, actor string, id uuid.UUID, cause error) {
	if actor == "" {
		actor = "anonymous"
	}
	if err := s.audit.LogError(ctx, action, cause,
		audit.WithActor(actor),
		audit.WithResource(AuditResource, id.String()),
	); err != nil {
		s.logger.ErrorContext(ctx, "failed to write contact audit record",
			logger.ContactRequestID(id), logger.Error(err))
	}
}
