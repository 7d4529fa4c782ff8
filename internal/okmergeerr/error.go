// Package okmergeerr provides error types shared between packages.
package okmergeerr

import (
	"errors"
	"fmt"
	"time"
)

// RetryableError wraps an error of a GitHub operation that can succeed when
// it is run again, e.g. because a rate limit was exceeded or GitHub is still
// computing a result.
type RetryableError struct {
	Err error
	// After is the earliest time the operation should be run again, the
	// zero value means no constraint.
	After time.Time
}

// NewRetryableError returns an error that can be retried not before
// retryAfter.
func NewRetryableError(err error, retryAfter time.Time) *RetryableError {
	return &RetryableError{Err: err, After: retryAfter}
}

// NewRetryableAnytimeError returns an error that can be retried immediately.
func NewRetryableAnytimeError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

// AsRetryable returns the first *RetryableError in the chain of err and
// true, or nil and false if err does not wrap one.
func AsRetryable(err error) (*RetryableError, bool) {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return retryErr, true
	}

	return nil, false
}

// WaitTime returns how long to wait from now until the operation can be
// retried, at least minWait.
func (e *RetryableError) WaitTime(minWait time.Duration) time.Duration {
	if e.After.IsZero() {
		return minWait
	}

	if d := time.Until(e.After); d > minWait {
		return d
	}

	return minWait
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func (e *RetryableError) Error() string {
	if e.After.IsZero() {
		return fmt.Sprintf("retryable error: %s", e.Err)
	}

	return fmt.Sprintf("retryable error (not before %s): %s", e.After.Format(time.RFC3339), e.Err)
}
