package postgres

import "errors"

// ErrCorruptRecord is returned when a stored row holds a value the domain rejects.
var ErrCorruptRecord = errors.New("corrupt record")
