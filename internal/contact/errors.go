package contact

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("contact request not found")
	ErrConcurrentUpdate = errors.New("contact request was modified concurrently")
	ErrValidation       = errors.New("invalid contact request")
	ErrForbidden        = errors.New("not allowed to act on contact request")
	ErrInvalidState     = errors.New("contact request is not in the required state")
	ErrExpired          = errors.New("contact request has expired")

	// ErrEncryption is matched by every keyring failure.
	ErrEncryption = errors.New("contact encryption error")

	ErrKeyNotFound = fmt.Errorf("%w: key not found", ErrEncryption)
	ErrKeyRetired  = fmt.Errorf("%w: key retired beyond grace period", ErrEncryption)

	ErrAuditWrite = errors.New("audit write failed")
)

// StateError reports an action attempted on a request in the wrong status.
type StateError struct {
	Action string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s contact request in status %q", e.Action, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}
