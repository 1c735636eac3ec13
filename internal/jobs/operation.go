package jobs

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Operation names a kind of deferred job.
type Operation string

const (
	OpRedeliver      Operation = "redeliver"
	OpExpireContact  Operation = "expire_contact"
	OpRotateKeys     Operation = "rotate_keys"
	OpCleanupExpired Operation = "cleanup_expired"
)

// Operations lists every known operation.
var Operations = []Operation{OpRedeliver, OpExpireContact, OpRotateKeys, OpCleanupExpired}

func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !slices.Contains(Operations, op) {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
	return op, nil
}

func (o Operation) String() string { return string(o) }

type RedeliverPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

type ExpireContactPayload struct {
	RequestID uuid.UUID `json:"request_id"`
}

type RotateKeysPayload struct{}

type CleanupExpiredPayload struct{}

// checkPayload verifies payload is the type op expects and returns the
// default uniqueness key for it.
func checkPayload(op Operation, payload any) (string, error) {
	switch op {
	case OpRedeliver:
		p, ok := payload.(RedeliverPayload)
		if !ok {
			return "", payloadError(op, payload)
		}
		if p.NotificationID == uuid.Nil {
			return "", fmt.Errorf("%w: notification id is required", ErrInvalidPayload)
		}
		return string(op) + ":" + p.NotificationID.String(), nil
	case OpExpireContact:
		p, ok := payload.(ExpireContactPayload)
		if !ok {
			return "", payloadError(op, payload)
		}
		if p.RequestID == uuid.Nil {
			return "", fmt.Errorf("%w: request id is required", ErrInvalidPayload)
		}
		return string(op) + ":" + p.RequestID.String(), nil
	case OpRotateKeys:
		if _, ok := payload.(RotateKeysPayload); !ok {
			return "", payloadError(op, payload)
		}
		return string(op), nil
	case OpCleanupExpired:
		if _, ok := payload.(CleanupExpiredPayload); !ok {
			return "", payloadError(op, payload)
		}
		return string(op), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, string(op))
}

func payloadError(op Operation, payload any) error {
	return fmt.Errorf("%w: %s does not accept %T", ErrInvalidPayload, op, payload)
}
