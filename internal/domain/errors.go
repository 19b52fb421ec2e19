package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures of an activity request.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed or missing payload field.
	// Surfaced to the requesting user and never retried.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILURE"

	// ErrCodePrecondition indicates the activity is not legal for the
	// bounty's current status.
	ErrCodePrecondition ErrorCode = "PRECONDITION_FAILED"

	// ErrCodeConcurrentModification indicates the conditional write lost a
	// race. Retrying requires a fresh read and re-validation.
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	// ErrCodeNotFound indicates an unknown bounty id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeDependencyUnavailable indicates the store or feed could not be
	// reached.
	ErrCodeDependencyUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"

	// ErrCodeUnrecognizedActivity indicates a change-feed event named an
	// activity this process does not support.
	ErrCodeUnrecognizedActivity ErrorCode = "UNRECOGNIZED_ACTIVITY"
)

// Error is the error type returned by the engine, store and pipeline.
type Error struct {
	Code     ErrorCode
	Message  string
	BountyID string
	Activity Activity
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Activity != "" {
		msg += fmt.Sprintf(" (activity=%s", e.Activity)
		if e.BountyID != "" {
			msg += fmt.Sprintf(", bounty=%s", e.BountyID)
		}
		msg += ")"
	} else if e.BountyID != "" {
		msg += fmt.Sprintf(" (bounty=%s)", e.BountyID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if err is a ValidationFailure.
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsPrecondition returns true if err is a PreconditionFailed.
func IsPrecondition(err error) bool { return CodeOf(err) == ErrCodePrecondition }

// IsConcurrentModification returns true if err is a ConcurrentModification.
func IsConcurrentModification(err error) bool {
	return CodeOf(err) == ErrCodeConcurrentModification
}

// IsNotFound returns true if err is a NotFound.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsDependencyUnavailable returns true if err is a DependencyUnavailable.
func IsDependencyUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeDependencyUnavailable
}

// IsUnrecognizedActivity returns true if err is an UnrecognizedActivity.
func IsUnrecognizedActivity(err error) bool {
	return CodeOf(err) == ErrCodeUnrecognizedActivity
}

// Retryable reports whether the operation may succeed if attempted again.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeConcurrentModification, ErrCodeDependencyUnavailable:
		return true
	default:
		return false
	}
}

// NewValidationError creates a ValidationFailure.
func NewValidationError(activity Activity, format string, args ...any) *Error {
	return &Error{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf(format, args...),
		Activity: activity,
	}
}

// NewPreconditionError creates a PreconditionFailed for an activity that is
// not legal in the bounty's current status.
func NewPreconditionError(b *Bounty, activity Activity, format string, args ...any) *Error {
	return &Error{
		Code:     ErrCodePrecondition,
		Message:  fmt.Sprintf(format, args...),
		BountyID: b.ID,
		Activity: activity,
	}
}

// NewConcurrentModification creates a ConcurrentModification.
func NewConcurrentModification(bountyID string, activity Activity) *Error {
	return &Error{
		Code:     ErrCodeConcurrentModification,
		Message:  "bounty changed since it was read",
		BountyID: bountyID,
		Activity: activity,
	}
}

// NewNotFound creates a NotFound.
func NewNotFound(bountyID string) *Error {
	return &Error{
		Code:     ErrCodeNotFound,
		Message:  "bounty does not exist",
		BountyID: bountyID,
	}
}

// NewDependencyUnavailable wraps an infrastructure failure.
func NewDependencyUnavailable(op string, err error) *Error {
	return &Error{
		Code:    ErrCodeDependencyUnavailable,
		Message: op,
		Err:     err,
	}
}

// NewUnrecognizedActivity creates an UnrecognizedActivity.
func NewUnrecognizedActivity(name string) *Error {
	return &Error{
		Code:    ErrCodeUnrecognizedActivity,
		Message: fmt.Sprintf("activity %q is not supported", name),
	}
}
