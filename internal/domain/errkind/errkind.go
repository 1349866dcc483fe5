// Package errkind defines the failure kinds surfaced by the quest core.
//
// Every failure returned to a caller carries exactly one kind so transports
// can map it without string matching. Kinds are compared with errors.Is.
package errkind

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("validation error")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrPersistence       = errors.New("persistence error")
)

var kinds = []error{
	ErrInvalidTransition,
	ErrNotFound,
	ErrUnauthorized,
	ErrValidation,
	ErrAlreadyProcessed,
	ErrPersistence,
}

// Error is a structured failure: the operation that failed, its kind, a
// human readable reason and an optional cause kept for operators.
type Error struct {
	Op     string
	Kind   error
	Reason string
	Err    error
}

// Error returns the user facing message. The cause is never included for
// persistence failures.
func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil && e.Reason == "" && !errors.Is(e.Kind, ErrPersistence) {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind builds a failure of the given kind. An optional reason replaces
// the kind's default message.
func NewKind(op string, kind error, reason ...string) error {
	e := &Error{Op: op, Kind: kind}
	if len(reason) > 0 {
		e.Reason = reason[0]
	}
	return e
}

// NewKindf builds a failure with a formatted reason.
func NewKindf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// WrapKind attaches a kind to a lower level error.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap re-labels err with op while keeping its kind. Errors without a known
// kind become persistence failures.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Op: op, Kind: e.Kind, Reason: e.Reason, Err: e.Err}
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// KindOf returns the kind carried by err, or ErrPersistence when none is.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrPersistence
}

// Reason returns the user facing reason for err without the op prefix.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		return e.Kind.Error()
	}
	return KindOf(err).Error()
}

// Opaque strips the cause from a persistence failure so internal detail does
// not leak to callers. Other kinds are returned unchanged.
func Opaque(op string, err error) error {
	if err == nil || !errors.Is(err, ErrPersistence) {
		return err
	}
	return &Error{Op: op, Kind: ErrPersistence, Reason: "storage temporarily unavailable"}
}
