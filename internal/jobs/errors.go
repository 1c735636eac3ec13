package jobs

import "errors"

var (
	ErrUnknownOperation = errors.New("unknown job operation")
	ErrInvalidPayload   = errors.New("payload does not match job operation")
)
