package contact

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of a contact exchange request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusDenied, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Audit actions and resource name.
const (
	ActionCreate  = "create"
	ActionApprove = "approve"
	ActionDeny    = "deny"
	ActionReveal  = "reveal"
	ActionExpire  = "expire"
	ActionRekey   = "rekey"

	AuditResource = "contact_request"
	SystemActor   = "system"
)

// Payload is the plaintext contact data shared by the owner.
type Payload struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (p Payload) marshal() (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func unmarshalPayload(s string) (Payload, error) {
	var p Payload
	err := json.Unmarshal([]byte(s), &p)
	return p, err
}

// Request is a sharing of an owner's contact data with a requester.
type Request struct {
	ID               uuid.UUID  `json:"id"`
	RequesterUserID  string     `json:"requester_user_id"`
	OwnerUserID      string     `json:"owner_user_id"`
	Purpose          string     `json:"purpose,omitempty"`
	EncryptedPayload *string    `json:"-"`
	KeyID            string     `json:"key_id"`
	Status           Status     `json:"status"`
	ExpiresAt        time.Time  `json:"expires_at"`
	PurgedAt         *time.Time `json:"purged_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ExpiredAt reports whether the request is past its expiry at now.
func (r *Request) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Purged reports whether the payload was removed.
func (r *Request) Purged() bool {
	return r.PurgedAt != nil || r.EncryptedPayload == nil
}

func (r *Request) purge(now time.Time, status Status) {
	r.EncryptedPayload = nil
	r.PurgedAt = &now
	r.Status = status
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	c := *r
	if r.EncryptedPayload != nil {
		p := *r.EncryptedPayload
		c.EncryptedPayload = &p
	}
	if r.PurgedAt != nil {
		t := *r.PurgedAt
		c.PurgedAt = &t
	}
	return &c
}
