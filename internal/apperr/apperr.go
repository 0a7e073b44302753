package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	// KindInternal covers storage failures and anything unexpected.
	KindInternal Kind = iota
	// KindValidation means the input is missing or malformed.
	KindValidation
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindConflict means an invariant would be violated (capacity, duplicates).
	KindConflict
	// KindUnauthorized means the actor is not a recognized admin.
	KindUnauthorized
)

// Error carries a kind alongside the message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Unauthorized builds an unauthorized error.
func Unauthorized(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind; unwrapped or foreign errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
