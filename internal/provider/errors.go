package provider

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("invalid provider configuration")
	ErrRetryable     = errors.New("retryable provider error")
	ErrPermanent     = errors.New("permanent provider error")
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindRateLimited    ErrorKind = "rate_limited"
	KindServerError    ErrorKind = "server_error"
	KindNetworkError   ErrorKind = "network_error"
)

// Error is returned by every Sender on failure.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers test for ErrRetryable or ErrPermanent without a type assertion.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRetryable:
		return e.Retryable()
	case ErrPermanent:
		return !e.Retryable()
	}
	return false
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServerError, KindNetworkError:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable provider error.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable()
}

// KindOf returns the error kind, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// KindForStatus maps an HTTP status code of a failed call to an error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindRateLimited
	case code == 401 || code == 403:
		return KindAuthentication
	case code == 408:
		return KindNetworkError
	case code >= 500:
		return KindServerError
	default:
		return KindValidation
	}
}

func validationError(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindValidation, Err: err}
}
