package notification

import (
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifier/pkg/statemachine"
	"github.com/dmitrymomot/notifier/pkg/validator"
)

const (
	MaxTitleLength = 255
	MaxBodyLength  = 10000
)

// Well-known metadata keys.
const (
	MetaDestination       = "destination"
	MetaProviderMessageID = "provider_message_id"
	MetaEventType         = "event_type"
	MetaCancelReason      = "cancel_reason"
	MetaLastError         = "last_error"
)

var lifecycle = statemachine.New[Status, event]().
	Permit(StatusPending, eventSend, StatusSent).
	Permit(StatusSent, eventDeliver, StatusDelivered).
	Permit(StatusPending, eventFail, StatusFailed).
	Permit(StatusSent, eventFail, StatusFailed).
	Permit(StatusPending, eventCancel, StatusCancelled)

// Notification is a single unit of outbound delivery work.
type Notification struct {
	ID            uuid.UUID      `json:"id"`
	UserID        string         `json:"user_id"`
	Channel       Channel        `json:"channel"`
	Status        Status         `json:"status"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ScheduledAt   *time.Time     `json:"scheduled_at,omitempty"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	FailedAt      *time.Time     `json:"failed_at,omitempty"`
	FailureReason *string        `json:"failure_reason,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	InsertedAt    time.Time      `json:"inserted_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CreateParams carries the attributes of a new notification.
type CreateParams struct {
	ID          uuid.UUID // generated when zero
	UserID      string
	Channel     Channel
	Title       string
	Body        string
	Metadata    map[string]any
	ScheduledAt *time.Time
	MaxRetries  int
}

// New validates p and returns a pending notification.
func New(p CreateParams) (*Notification, error) {
	if err := validator.Apply(
		validator.RequiredString("user_id", p.UserID),
		validator.OneOf("channel", p.Channel, Channels),
		validator.RequiredString("title", p.Title),
		validator.MaxLenString("title", p.Title, MaxTitleLength),
		validator.RequiredString("body", p.Body),
		validator.MaxLenString("body", p.Body, MaxBodyLength),
		validator.MinNum("max_retries", p.MaxRetries, 0),
	); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	metadata := maps.Clone(p.Metadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}

	now := time.Now().UTC()
	var scheduledAt *time.Time
	if p.ScheduledAt != nil {
		t := p.ScheduledAt.UTC()
		scheduledAt = &t
	}

	return &Notification{
		ID:          id,
		UserID:      p.UserID,
		Channel:     p.Channel,
		Status:      StatusPending,
		Title:       p.Title,
		Body:        p.Body,
		Metadata:    metadata,
		ScheduledAt: scheduledAt,
		MaxRetries:  p.MaxRetries,
		InsertedAt:  now,
		UpdatedAt:   now,
	}, nil
}

// ReadyToSend reports whether the notification has no schedule or its schedule has arrived.
func (n *Notification) ReadyToSend() bool {
	return n.ReadyToSendAt(time.Now())
}

func (n *Notification) ReadyToSendAt(now time.Time) bool {
	return n.ScheduledAt == nil || !n.ScheduledAt.After(now)
}

// ValidForProcessing is the structural pre-flight check run before a delivery attempt.
func (n *Notification) ValidForProcessing() error {
	if err := validator.Apply(
		validator.OneOf("channel", n.Channel, Channels),
		validator.RequiredString("title", n.Title),
		validator.RequiredString("body", n.Body),
	); err != nil {
		return errors.Join(ErrValidation, err)
	}
	return nil
}

// Send moves a pending, due notification to sent.
func (n *Notification) Send() error {
	return n.SendAt(time.Now())
}

// SendAt is Send with an explicit clock reading.
func (n *Notification) SendAt(now time.Time) error {
	if !lifecycle.CanFire(n.Status, eventSend) {
		return &TransitionError{Op: "send", Status: n.Status}
	}
	if !n.ReadyToSendAt(now) {
		return ErrNotReadyToSend
	}

	n.Status = StatusSent
	n.SentAt = stamp(now)
	n.UpdatedAt = now.UTC()
	return nil
}

// MarkDelivered records delivery confirmation. Only valid from sent.
func (n *Notification) MarkDelivered() error {
	next, err := lifecycle.Fire(n.Status, eventDeliver)
	if err != nil {
		return &TransitionError{Op: "mark delivered", Status: n.Status}
	}

	now := time.Now()
	n.Status = next
	n.DeliveredAt = stamp(now)
	n.UpdatedAt = now.UTC()
	return nil
}

// MarkFailed records a terminal failure with reason.
func (n *Notification) MarkFailed(reason string) error {
	next, err := lifecycle.Fire(n.Status, eventFail)
	if err != nil {
		return &TransitionError{Op: "mark failed", Status: n.Status}
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown failure"
	}

	now := time.Now()
	n.Status = next
	n.FailedAt = stamp(now)
	n.FailureReason = &reason
	n.UpdatedAt = now.UTC()
	return nil
}

// Cancel stops a pending notification from being delivered.
func (n *Notification) Cancel(reason string) error {
	next, err := lifecycle.Fire(n.Status, eventCancel)
	if err != nil {
		return &TransitionError{Op: "cancel", Status: n.Status}
	}

	n.Status = next
	if reason != "" {
		n.SetMeta(MetaCancelReason, reason)
	}
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// IncrementRetry consumes one unit of the retry budget.
func (n *Notification) IncrementRetry() error {
	if n.Status != StatusPending {
		return &TransitionError{Op: "retry", Status: n.Status}
	}
	if n.RetryCount >= n.MaxRetries {
		return ErrRetryBudgetExhausted
	}

	n.RetryCount++
	n.UpdatedAt = time.Now().UTC()
	return nil
}

// CanRetry reports whether another retry fits in the budget.
func (n *Notification) CanRetry() bool {
	return n.Status == StatusPending && n.RetryCount < n.MaxRetries
}

func (n *Notification) IsTerminal() bool {
	return n.Status.IsTerminal()
}

// Meta returns the string metadata value for key.
func (n *Notification) Meta(key string) string {
	if n.Metadata == nil {
		return ""
	}
	s, _ := n.Metadata[key].(string)
	return s
}

func (n *Notification) SetMeta(key string, value any) {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
}

// Clone returns a copy that shares no mutable state with n.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Metadata = maps.Clone(n.Metadata)
	c.ScheduledAt = clonePtr(n.ScheduledAt)
	c.SentAt = clonePtr(n.SentAt)
	c.DeliveredAt = clonePtr(n.DeliveredAt)
	c.FailedAt = clonePtr(n.FailedAt)
	c.FailureReason = clonePtr(n.FailureReason)
	return &c
}

func stamp(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
