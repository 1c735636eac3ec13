package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/pkg/logger"
	"github.com/dmitrymomot/notifier/pkg/sanitizer"
)

// Metadata keys set on notifications created from events.
const (
	MetaPostID  = "post_id"
	MetaMatchID = "match_id"
	MetaRole    = "recipient_role"
)

// recipient is one user to notify about an event.
type recipient struct {
	userID      string
	template    string
	data        any
	metadata    map[string]any
	scheduledAt *time.Time
}

// Mapper turns event envelopes into notification creation parameters,
// one per recipient and enabled channel.
type Mapper struct {
	templates  *Templates
	prefs      notification.PreferencesStore
	contacts   notification.ContactBook
	maxRetries int
	logger     *slog.Logger
}

type MapperOption func(*Mapper)

// WithMaxRetries sets the retry budget of created notifications.
func WithMaxRetries(n int) MapperOption {
	return func(m *Mapper) {
		if n >= 0 {
			m.maxRetries = n
		}
	}
}

func WithMapperLogger(l *slog.Logger) MapperOption {
	return func(m *Mapper) { m.logger = l }
}

func NewMapper(templates *Templates, prefs notification.PreferencesStore, contacts notification.ContactBook, opts ...MapperOption) *Mapper {
	if templates == nil || prefs == nil || contacts == nil {
		panic("ingest: mapper requires templates, preferences and contacts")
	}
	m := &Mapper{
		templates:  templates,
		prefs:      prefs,
		contacts:   contacts,
		maxRetries: 3,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map returns the notifications env calls for. User events also record the
// user's contact details. A recipient with every channel disabled gets nothing.
func (m *Mapper) Map(ctx context.Context, env Envelope) ([]notification.CreateParams, error) {
	recipients, err := m.recipients(ctx, env)
	if err != nil {
		return nil, err
	}

	var out []notification.CreateParams
	for _, r := range recipients {
		title, body, err := m.templates.Render(r.template, r.data)
		if err != nil {
			return nil, err
		}

		prefs, err := m.prefs.Get(ctx, r.userID)
		if err != nil {
			return nil, fmt.Errorf("load preferences of %s: %w", r.userID, err)
		}
		channels := prefs.EnabledChannels()
		if len(channels) == 0 {
			m.logger.DebugContext(ctx, "all channels disabled, skipping recipient",
				logger.EventType(env.EventType),
				logger.UserID(r.userID))
			continue
		}

		for _, ch := range channels {
			md := map[string]any{notification.MetaEventType: env.EventType}
			maps.Copy(md, r.metadata)
			out = append(out, notification.CreateParams{
				UserID:      r.userID,
				Channel:     ch,
				Title:       title,
				Body:        body,
				Metadata:    md,
				ScheduledAt: r.scheduledAt,
				MaxRetries:  m.maxRetries,
			})
		}
	}
	return out, nil
}

func (m *Mapper) recipients(ctx context.Context, env Envelope) ([]recipient, error) {
	switch env.EventType {
	case EventPostCreated, EventPostExpired:
		p, err := decodePayload[PostEvent](env)
		if err != nil {
			return nil, err
		}
		return []recipient{{
			userID:      p.UserID,
			template:    env.EventType,
			data:        p,
			metadata:    map[string]any{MetaPostID: p.PostID},
			scheduledAt: p.ScheduledAt,
		}}, nil

	case EventPostMatched:
		p, err := decodePayload[MatchEvent](env)
		if err != nil {
			return nil, err
		}
		md := func(role string) map[string]any {
			out := map[string]any{MetaPostID: p.PostID, MetaRole: role}
			if p.MatchID != "" {
				out[MetaMatchID] = p.MatchID
			}
			return out
		}
		return []recipient{
			{userID: p.OwnerUserID, template: tmplMatchOwner, data: p, metadata: md("owner"), scheduledAt: p.ScheduledAt},
			{userID: p.MatchedUserID, template: tmplMatchMatched, data: p, metadata: md("matched"), scheduledAt: p.ScheduledAt},
		}, nil

	case EventUserRegistered, EventUserVerified:
		p, err := decodePayload[UserEvent](env)
		if err != nil {
			return nil, err
		}
		if p.Email != "" || p.Phone != "" {
			if err := m.contacts.Put(ctx, notification.Contact{UserID: p.UserID, Email: p.Email, Phone: p.Phone}); err != nil {
				return nil, fmt.Errorf("record contact of %s: %w", p.UserID, err)
			}
			m.logger.DebugContext(ctx, "contact recorded",
				logger.UserID(p.UserID),
				slog.String("email", sanitizer.MaskEmail(p.Email)),
				slog.String("phone", sanitizer.MaskPhone(p.Phone)))
		}
		return []recipient{{userID: p.UserID, template: env.EventType, data: p}}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
}
