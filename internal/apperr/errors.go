// Package apperr defines the error taxonomy returned by the lost-and-found core.
//
// Business-rule violations are returned as *Error values carrying a Kind.
// Callers test them with errors.Is against the Err* sentinels or with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a business-rule failure.
type Kind string

const (
	KindInternal        Kind = "internal"
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state"
	KindConflict        Kind = "conflict"
	KindInvalidArgument Kind = "invalid_argument"
	KindBusy            Kind = "busy"
)

var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrBusy            = &Error{Kind: KindBusy}
)

// Error is a typed business error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels compare by kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may safely retry once.
func (e *Error) Retryable() bool {
	return e.Kind == KindBusy || e.Kind == KindConflict
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return newf(KindNotFound, op, format, args...)
}

func InvalidState(op, format string, args ...any) error {
	return newf(KindInvalidState, op, format, args...)
}

func Conflict(op, format string, args ...any) error {
	return newf(KindConflict, op, format, args...)
}

func InvalidArgument(op, format string, args ...any) error {
	return newf(KindInvalidArgument, op, format, args...)
}

func Busy(op, format string, args ...any) error {
	return newf(KindBusy, op, format, args...)
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err may be retried once by the caller.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
