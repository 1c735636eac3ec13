package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/notifier/pkg/sanitizer"
	"github.com/dmitrymomot/notifier/pkg/validator"
)

const (
	maxTitleRunes = 200
	maxNameRunes  = 100
)

var (
	cleanTitle = sanitizer.Compose(sanitizer.StripHTML, sanitizer.SingleLine, sanitizer.MaxRunes(maxTitleRunes))
	cleanName  = sanitizer.Compose(sanitizer.StripHTML, sanitizer.SingleLine, sanitizer.MaxRunes(maxNameRunes))
)

// Event types carried in the envelope.
const (
	EventPostCreated    = "post.created"
	EventPostExpired    = "post.expired"
	EventPostMatched    = "post.matched"
	EventUserRegistered = "user.registered"
	EventUserVerified   = "user.verified"
)

// EventTypes lists every event type the mapper understands.
var EventTypes = []string{
	EventPostCreated, EventPostExpired, EventPostMatched,
	EventUserRegistered, EventUserVerified,
}

// Envelope is the wire format shared by every topic.
type Envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses a raw bus message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.Join(ErrMalformedEnvelope, err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: event_type is required", ErrMalformedEnvelope)
	}
	if !slices.Contains(EventTypes, env.EventType) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return Envelope{}, fmt.Errorf("%w: payload is required", ErrMalformedEnvelope)
	}
	return env, nil
}

// PostEvent is the payload of post.created and post.expired.
type PostEvent struct {
	PostID      string     `json:"post_id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

func (e PostEvent) sanitized() PostEvent {
	e.Title = cleanTitle(e.Title)
	return e
}

func (e PostEvent) validate() error {
	return validator.Apply(
		validator.RequiredString("post_id", e.PostID),
		validator.RequiredString("user_id", e.UserID),
		validator.RequiredString("title", e.Title),
	)
}

// MatchEvent is the payload of post.matched. Both parties are notified.
type MatchEvent struct {
	MatchID       string     `json:"match_id"`
	PostID        string     `json:"post_id"`
	Title         string     `json:"title"`
	OwnerUserID   string     `json:"owner_user_id"`
	MatchedUserID string     `json:"matched_user_id"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
}

func (e MatchEvent) sanitized() MatchEvent {
	e.Title = cleanTitle(e.Title)
	return e
}

func (e MatchEvent) validate() error {
	return validator.Apply(
		validator.RequiredString("post_id", e.PostID),
		validator.RequiredString("title", e.Title),
		validator.RequiredString("owner_user_id", e.OwnerUserID),
		validator.RequiredString("matched_user_id", e.MatchedUserID),
		validator.NotEqual("matched_user_id", e.MatchedUserID, e.OwnerUserID),
	)
}

// UserEvent is the payload of user.registered and user.verified.
// Contact fields update the contact book used for destination lookup.
type UserEvent struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

func (e UserEvent) sanitized() UserEvent {
	e.Name = cleanName(e.Name)
	if e.Email != "" {
		e.Email = sanitizer.NormalizeEmail(e.Email)
	}
	if e.Phone != "" {
		e.Phone = sanitizer.NormalizePhone(e.Phone)
	}
	return e
}

func (e UserEvent) validate() error {
	return validator.Apply(
		validator.RequiredString("user_id", e.UserID),
		validator.When(e.Email != "", validator.ValidEmail("email", e.Email)),
		validator.When(e.Phone != "", validator.ValidE164Phone("phone", e.Phone)),
	)
}

// payload is an event payload that can clean its free text fields.
type payload[T any] interface {
	sanitized() T
	validate() error
}

func decodePayload[T payload[T]](env Envelope) (T, error) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return p, errors.Join(ErrInvalidPayload, err)
	}
	p = p.sanitized()
	if err := p.validate(); err != nil {
		return p, errors.Join(ErrInvalidPayload, err)
	}
	return p, nil
}
