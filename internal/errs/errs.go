// Package errs defines the error kinds surfaced to callers.
//
// Every error that leaves the registry is an *Error carrying a Kind and a human-readable
// detail. Transports map the kind to a status code in one place; nothing else inspects
// error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by what the caller can do about it.
type Kind string

const (
	// KindValidation means the input was malformed or incomplete. Fix and retry.
	KindValidation Kind = "validation"
	// KindNotFound means a referenced entity does not exist. Retrying will not help.
	KindNotFound Kind = "not_found"
	// KindAuth means the caller lacks a required identity.
	KindAuth Kind = "auth"
	// KindPersistence means the backing store failed. The whole operation may be retried.
	KindPersistence Kind = "persistence"
)

// Error is a classified error with a detail message for the caller.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Auth builds a KindAuth error.
func Auth(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Detail: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure.
func Persistence(err error, format string, args ...any) *Error {
	return &Error{Kind: KindPersistence, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailOf returns the caller-facing detail, falling back to the error text.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
