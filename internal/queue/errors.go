package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/stwalsh4118/lecturesfrom/internal/db"
)

// Kind classifies a queue failure for callers
type Kind int

const (
	// KindValidation indicates missing or malformed input
	KindValidation Kind = iota
	// KindNotFound indicates the referenced submission or event does not exist
	KindNotFound
	// KindInvalidTransition indicates the action is not legal from the current status
	KindInvalidTransition
	// KindConflict indicates a concurrent mutation broke the precondition; safe to retry
	KindConflict
	// KindDependencyFailure indicates the store or notifier is unavailable
	KindDependencyFailure
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	case KindDependencyFailure:
		return "dependency_failure"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by every queue operation
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...), nil)
}

func notFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, fmt.Sprintf(format, args...), nil)
}

func invalidTransitionError(format string, args ...any) *Error {
	return newError(KindInvalidTransition, fmt.Sprintf(format, args...), nil)
}

func conflictError(cause error, format string, args ...any) *Error {
	return newError(KindConflict, fmt.Sprintf(format, args...), cause)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may safely repeat the request
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindDependencyFailure
}

// KindOf returns the kind of a queue error. ok is false for foreign errors.
func KindOf(err error) (Kind, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind, true
	}
	return 0, false
}

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsInvalidTransition checks if the error is an invalid transition error
func IsInvalidTransition(err error) bool { return isKind(err, KindInvalidTransition) }

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool { return isKind(err, KindConflict) }

// IsDependencyFailure checks if the error is a dependency failure
func IsDependencyFailure(err error) bool { return isKind(err, KindDependencyFailure) }

// classifyStoreError turns a repository or transaction failure into a queue error.
// Queue errors raised inside a transaction pass through unchanged.
func classifyStoreError(err error, message string) error {
	if err == nil {
		return nil
	}

	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}

	switch {
	case db.IsNotFound(err):
		return newError(KindNotFound, message, err)
	case db.IsDuplicate(err), db.IsStale(err), db.IsBusy(err):
		return newError(KindConflict, message, err)
	case errors.Is(err, context.Canceled):
		return newError(KindDependencyFailure, message+": request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindDependencyFailure, message+": store timed out", err)
	default:
		return newError(KindDependencyFailure, message, err)
	}
}
