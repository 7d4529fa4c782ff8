// Package retryer provides running operations repeatedly with a fixed pause
// between attempts until they succeed or a retry budget is exhausted.
package retryer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/logfields"
	"github.com/simplesurance/okmerge/internal/okmergeerr"
)

const (
	// DefInterval is the default pause between 2 attempts.
	DefInterval = 5 * time.Second
	// DefMaxRetries is the default number of retries after the first
	// attempt.
	DefMaxRetries uint = 5
)

const loggerName = "retryer"

// RetriesExhaustedError is returned when an operation still failed with a
// retryable error after the last allowed attempt.
type RetriesExhaustedError struct {
	// Attempts is the number of times the operation was run, including
	// attempts that happened before the Retryer was invoked.
	Attempts uint
	// Err is the error returned by the last attempt, it is nil if no
	// attempt was made.
	Err error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("giving up after %d attempts", e.Attempts)
	}

	return fmt.Sprintf("giving up after %d attempts, last error: %s", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// Retryer executes a function repeatedly until it was successful, returned a
// non-retryable error, the retry budget was exhausted or the context was
// cancelled.
type Retryer struct {
	logger     *zap.Logger
	interval   time.Duration
	maxRetries uint
}

type Option func(*Retryer)

// WithInterval sets the pause between 2 attempts.
func WithInterval(d time.Duration) Option {
	return func(r *Retryer) {
		r.interval = d
	}
}

// WithMaxRetries sets how often an operation is retried after the first
// attempt failed.
func WithMaxRetries(n uint) Option {
	return func(r *Retryer) {
		r.maxRetries = n
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Retryer) {
		r.logger = logger
	}
}

func New(opts ...Option) *Retryer {
	r := Retryer{
		interval:   DefInterval,
		maxRetries: DefMaxRetries,
	}

	for _, opt := range opts {
		opt(&r)
	}

	if r.logger == nil {
		r.logger = zap.L().Named(loggerName)
	}

	return &r
}

// Run executes fn until it was successful, it returned an error that
// does not wrap okmergeerr.RetryableError, the retry budget is exhausted or
// the execution was aborted via the context.
// When the budget is exhausted a *RetriesExhaustedError is returned.
// If the retryable error specifies an earliest retry time, the next attempt
// does not happen before it. If that time is after the end of the retry
// budget the error is returned without retrying.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	return r.RunFrom(ctx, 0, fn, logF)
}

// RunFrom is like Run but considers that elapsedAttempts attempts already
// happened. If elapsedAttempts is already bigger than the max. number of
// retries, fn is not run and a *RetriesExhaustedError is returned.
func (r *Retryer) RunFrom(ctx context.Context, elapsedAttempts uint, fn func(context.Context) error, logF []zap.Field) error {
	logger := r.logger.With(logF...)

	if elapsedAttempts > r.maxRetries {
		logger.Warn(
			"retry budget already exhausted, operation not run",
			logfields.Event("retry_budget_exhausted"),
			zap.Uint("attempts", elapsedAttempts),
			zap.Uint("max_retries", r.maxRetries),
		)

		return &RetriesExhaustedError{Attempts: elapsedAttempts}
	}

	attempts := elapsedAttempts
	remainingRetries := r.maxRetries - elapsedAttempts
	budgetEnd := time.Now().Add(time.Duration(remainingRetries) * r.interval)

	bo := backoff.NewConstantBackOff(r.interval)

	var retryTimer *time.Timer
	defer func() {
		if retryTimer != nil {
			retryTimer.Stop()
		}
	}()

	for {
		attempts++

		logger.Debug(
			"running operation",
			logfields.Event("operation_running"),
			zap.Uint("try_count", attempts),
		)

		err := fn(ctx)
		if err == nil {
			logger.Debug(
				"operation executed successfully",
				logfields.Event("operation_executed_successfully"),
				zap.Uint("try_count", attempts),
			)

			return nil
		}

		errLogger := logger.With(zap.Uint("try_count", attempts), zap.Error(err))

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			errLogger.Info(
				"operation cancelled",
				logfields.Event("operation_cancelled"),
			)

			return err
		}

		retryError, retryable := okmergeerr.AsRetryable(err)
		if !retryable {
			errLogger.Debug(
				"operation failed, not retryable",
				logfields.Event("operation_failed"),
			)

			return err
		}

		if attempts > r.maxRetries {
			errLogger.Warn(
				"giving up retrying operation, retry budget exhausted",
				logfields.Event("retry_budget_exhausted"),
				zap.Uint("max_retries", r.maxRetries),
			)

			return &RetriesExhaustedError{Attempts: attempts, Err: err}
		}

		if retryError.After.After(budgetEnd) {
			errLogger.Warn(
				"giving up retrying operation, next possible retry time is after the retry budget expires",
				logfields.Event("retry_after_budget_expiration"),
				zap.Time("earliest_allowed_retry", retryError.After),
				zap.Time("retry_budget_end", budgetEnd),
			)

			return fmt.Errorf("earliest retry time %s is after the retry budget expires: %w", retryError.After, err)
		}

		retryIn := retryError.WaitTime(bo.NextBackOff())

		errLogger.Debug(
			"operation failed, retry scheduled",
			logfields.Event("operation_retry_scheduled"),
			zap.Duration("retry_in", retryIn),
		)

		if retryTimer == nil {
			retryTimer = time.NewTimer(retryIn)
		} else {
			retryTimer.Reset(retryIn)
		}

		select {
		case <-ctx.Done():
			errLogger.Info(
				"operation cancelled while waiting for retry",
				logfields.Event("operation_cancelled"),
				zap.NamedError("cancel_reason", ctx.Err()),
			)

			return fmt.Errorf("waiting for retry failed: %w", ctx.Err())

		case <-retryTimer.C:
		}
	}
}
