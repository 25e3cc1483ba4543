package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable failure code carried across the
// action protocol boundary.
type ErrorKind string

const (
	// Validation failures.
	ErrInvalidDomain       ErrorKind = "invalid_domain"
	ErrInvalidDuration     ErrorKind = "invalid_duration"
	ErrDurationTooShort    ErrorKind = "duration_too_short"
	ErrDurationTooLong     ErrorKind = "duration_too_long"
	ErrScheduleNoDomains   ErrorKind = "schedule_no_domains"
	ErrScheduleNoDays      ErrorKind = "schedule_no_days"
	ErrScheduleInvalidTime ErrorKind = "schedule_invalid_time"

	// State conflicts.
	ErrBlockNotFound           ErrorKind = "block_not_found"
	ErrInvalidSchedule         ErrorKind = "invalid_schedule"
	ErrUnblockPending          ErrorKind = "unblock_pending"
	ErrUnblockDelayNotComplete ErrorKind = "unblock_delay_not_complete"
	ErrNoPendingUnblock        ErrorKind = "no_pending_unblock"

	// Storage failures (environment problems, logged at the boundary).
	ErrReadFailed  ErrorKind = "read_failed"
	ErrWriteFailed ErrorKind = "write_failed"
	ErrLockTimeout ErrorKind = "lock_timeout"

	// Protocol.
	ErrUnknownAction ErrorKind = "unknown_action"

	// Catch-all for anything unexpected.
	ErrUnknown ErrorKind = "unknown"
)

// Storage reports whether the kind indicates an environment problem rather
// than a caller mistake.
func (k ErrorKind) Storage() bool {
	switch k {
	case ErrReadFailed, ErrWriteFailed, ErrLockTimeout:
		return true
	}
	return false
}

// Error is the one typed error value used throughout the core. Details
// carries structured fields (remainingTime, limits) for the caller to
// render; Kind maps to exactly one user-visible message at the boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// E constructs a typed error.
func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef constructs a typed error with a formatted message.
func Ef(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a structured detail field and returns the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error for diagnostics.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// AsError extracts a typed error from an error chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of an error, or ErrUnknown for anything that is
// not a typed error.
func KindOf(err error) ErrorKind {
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	return ErrUnknown
}
