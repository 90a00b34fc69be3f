package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotFound is returned by Fetch when the record does not exist
var ErrNotFound = errors.New("record not found")

// Class is the sync engine's view of an adapter error
type Class int

const (
	// ClassNone means no error
	ClassNone Class = iota
	// ClassTransient errors are retried with backoff
	ClassTransient
	// ClassPermanent errors are never retried
	ClassPermanent
	// ClassAuth errors pause the tenant's connection to the adapter
	ClassAuth
	// ClassNotFound means the record is absent
	ClassNotFound
)

// String returns the class name
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassAuth:
		return "auth"
	case ClassNotFound:
		return "not-found"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// TransientError is a retryable failure: timeouts, 5xx responses and rate limits
type TransientError struct {
	System string
	Err    error
	// RetryAfter is the delay the remote system asked for, zero when unknown
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient error: %v", e.System, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError is a failure that retrying cannot fix, such as a validation rejection
type PermanentError struct {
	System string
	Err    error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent error: %v", e.System, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// AuthError means the credentials for the system were rejected
type AuthError struct {
	System string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.System, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError
func Transient(system string, err error) error {
	return &TransientError{System: system, Err: err}
}

// Permanent wraps err as a PermanentError
func Permanent(system string, err error) error {
	return &PermanentError{System: system, Err: err}
}

// Auth wraps err as an AuthError
func Auth(system string, err error) error {
	return &AuthError{System: system, Err: err}
}

// Classify maps an error returned by an adapter to its Class.
// Untyped errors are classified as transient when they look like network
// failures or deadlines and as permanent otherwise.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return ClassAuth
	}
	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return ClassPermanent
	}
	var transErr *TransientError
	if errors.As(err, &transErr) {
		return ClassTransient
	}
	if errors.Is(err, ErrNotFound) {
		return ClassNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	return ClassPermanent
}

// RetryAfter returns the delay requested by a TransientError, if any
func RetryAfter(err error) time.Duration {
	var transErr *TransientError
	if errors.As(err, &transErr) {
		return transErr.RetryAfter
	}
	return 0
}
