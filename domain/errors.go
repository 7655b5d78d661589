package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidIntent is returned before any I/O when a mutation request is
// malformed.
var ErrInvalidIntent = errors.New("invalid intent")

// ErrUnresolvedTempID indicates the ledger confirmed a creation without
// mapping every temporary id of the new subtree.
var ErrUnresolvedTempID = errors.New("unresolved temporary id")

// InvalidIntent wraps ErrInvalidIntent with the offending field.
func InvalidIntent(field, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidIntent, field, msg)
}

// SigningError means the identity could not produce a signature.
type SigningError struct {
	Auth string
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign as %q: %v", e.Auth, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// SubmissionError is a transport failure while submitting or polling. The
// ledger side fate of the command is unknown.
type SubmissionError struct {
	Op          string
	StatusCode  int
	Recoverable bool
	Err         error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RejectedError is an explicit refusal by the ledger.
type RejectedError struct {
	Handle TxHandle
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Handle == "" {
		return "rejected by ledger: " + e.Reason
	}
	return fmt.Sprintf("transaction %s rejected by ledger: %s", e.Handle, e.Reason)
}

// TimedOutError means no terminal status was observed in time. The write
// may still land later.
type TimedOutError struct {
	Handle TxHandle
	Waited time.Duration
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %s", e.Handle, e.Waited)
}

// ErrorClass is a stable name for an error category.
type ErrorClass string

const (
	ClassNone          ErrorClass = ""
	ClassInvalidIntent ErrorClass = "invalid-intent"
	ClassSigning       ErrorClass = "signing"
	ClassSubmission    ErrorClass = "submission"
	ClassRejected      ErrorClass = "rejected"
	ClassTimedOut      ErrorClass = "timed-out"
	ClassInternal      ErrorClass = "internal"
)

// Classify maps an error onto the taxonomy.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var (
		signErr     *SigningError
		submitErr   *SubmissionError
		rejectedErr *RejectedError
		timeoutErr  *TimedOutError
	)
	switch {
	case errors.Is(err, ErrInvalidIntent):
		return ClassInvalidIntent
	case errors.As(err, &signErr):
		return ClassSigning
	case errors.As(err, &rejectedErr):
		return ClassRejected
	case errors.As(err, &timeoutErr):
		return ClassTimedOut
	case errors.As(err, &submitErr):
		return ClassSubmission
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ClassSubmission
	default:
		return ClassInternal
	}
}

// Unknown reports whether the ledger-side fate of the command is unknown
// after err, as opposed to known failed.
func Unknown(err error) bool {
	switch Classify(err) {
	case ClassSubmission, ClassTimedOut:
		return true
	}
	return false
}
