package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an engine failure. Kinds are stable strings because
// they are surfaced to callers inside line items and HTTP error bodies.
type ErrorKind string

const (
	KindCodeNotFound         ErrorKind = "CODE_NOT_FOUND"
	KindLocalityNotFound     ErrorKind = "LOCALITY_NOT_FOUND"
	KindLocalityUnresolvable ErrorKind = "LOCALITY_UNRESOLVABLE"
	KindUnsupportedYear      ErrorKind = "UNSUPPORTED_YEAR"
	KindRowParse             ErrorKind = "ROW_PARSE_ERROR"
	KindInvalidInput         ErrorKind = "INVALID_INPUT"
)

// Error is the typed error returned by lookups, pricing and analysis.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so callers can match against the sentinels below
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrCodeNotFound         = &Error{Kind: KindCodeNotFound}
	ErrLocalityNotFound     = &Error{Kind: KindLocalityNotFound}
	ErrLocalityUnresolvable = &Error{Kind: KindLocalityUnresolvable}
	ErrUnsupportedYear      = &Error{Kind: KindUnsupportedYear}
	ErrRowParse             = &Error{Kind: KindRowParse}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
)

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the ErrorKind carried by err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
