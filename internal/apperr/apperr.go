// Package apperr defines the error-kind taxonomy shared by the HTTP surface
// and the worker's retry classifier, so both consume one vocabulary instead
// of inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purpose of HTTP status mapping and retry
// policy selection.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInfra      Kind = "infra"
)

// Error wraps a cause with a Kind and an optional offending field name.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Msg, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func Validation(msg string) *Error             { return newErr(KindValidation, msg, nil) }
func ValidationField(field, msg string) *Error  { return &Error{Kind: KindValidation, Field: field, Msg: msg} }
func NotFound(msg string) *Error                { return newErr(KindNotFound, msg, nil) }
func Conflict(msg string) *Error                { return newErr(KindConflict, msg, nil) }
func Infra(msg string, cause error) *Error      { return newErr(KindInfra, msg, cause) }

// KindOf extracts the Kind of err, defaulting to KindInfra for unclassified
// errors — infrastructure failures are the safe fallback since they map to
// a 5xx, not a misleading 4xx.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfra
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
