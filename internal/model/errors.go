package model

import (
	"errors"
	"fmt"
)

// Kind is the stable classification of a failure. The set is closed.
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindNotFound              Kind = "not_found"
	KindPastEvent             Kind = "past_event"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindCapacityExceeded      Kind = "capacity_exceeded"
	KindNotRegistered         Kind = "not_registered"
	KindUniqueViolation       Kind = "unique_constraint_violation"
	KindTransient             Kind = "transient_store_error"
	KindRateLimited           Kind = "rate_limited"
	KindInternal              Kind = "internal_error"
)

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrPastEvent             = &Error{Kind: KindPastEvent}
	ErrDuplicateRegistration = &Error{Kind: KindDuplicateRegistration}
	ErrCapacityExceeded      = &Error{Kind: KindCapacityExceeded}
	ErrNotRegistered         = &Error{Kind: KindNotRegistered}
	ErrUniqueViolation       = &Error{Kind: KindUniqueViolation}
	ErrTransient             = &Error{Kind: KindTransient}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrInternal              = &Error{Kind: KindInternal}
)

// Validation returns a validation error with the given message.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotFound returns a not-found error with the given message.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Transient wraps a store error that is safe to retry.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Message: "store temporarily unavailable", Err: err}
}

// KindOf returns the classification of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsStoreFailure reports whether err is a transient or internal failure, as
// opposed to a classified client error.
func IsStoreFailure(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindInternal:
		return true
	default:
		return false
	}
}
