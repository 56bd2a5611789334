package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies completion failures so callers can pick a
// user-visible fallback instead of crashing the event loop.
type ErrorKind string

const (
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindTransport ErrorKind = "transport"
)

type Error struct {
	Kind   ErrorKind
	Status int
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Status > 0 {
		return fmt.Sprintf("llm %s: %s (http %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("llm %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the classification of err, or ErrorKindTransport when err
// does not carry one. A nil err returns the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrorKindTransport
}
