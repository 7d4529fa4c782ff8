package retryer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/okmerge/internal/okmergeerr"
)

const testInterval = 10 * time.Millisecond

func TestRunReturnsOnSuccess(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval))

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return okmergeerr.NewRetryableAnytimeError(errors.New("err"))
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval), WithMaxRetries(5))
	origErr := errors.New("pending")

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return okmergeerr.NewRetryableAnytimeError(origErr)
	}, nil)

	var exhaustedErr *RetriesExhaustedError
	require.ErrorAs(t, err, &exhaustedErr)
	assert.Equal(t, uint(6), exhaustedErr.Attempts)
	assert.ErrorIs(t, err, origErr)
	assert.Equal(t, 6, calls)
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval))
	origErr := errors.New("not found")

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return origErr
	}, nil)

	assert.Equal(t, origErr, err)
	assert.Equal(t, 1, calls)
}

func TestRunFromConsidersElapsedAttempts(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval), WithMaxRetries(5))

	var calls int
	err := r.RunFrom(context.Background(), 4, func(context.Context) error {
		calls++
		return okmergeerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	var exhaustedErr *RetriesExhaustedError
	require.ErrorAs(t, err, &exhaustedErr)
	assert.Equal(t, uint(6), exhaustedErr.Attempts)
	assert.Equal(t, 2, calls)
}

func TestRunFromWithExhaustedBudgetDoesNotRun(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval), WithMaxRetries(5))

	err := r.RunFrom(context.Background(), 6, func(context.Context) error {
		t.Error("operation must not be run")
		return nil
	}, nil)

	var exhaustedErr *RetriesExhaustedError
	require.ErrorAs(t, err, &exhaustedErr)
	assert.Equal(t, uint(6), exhaustedErr.Attempts)
	assert.NoError(t, exhaustedErr.Err)
}

func TestRunIsCancelledViaContext(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(time.Minute))

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	var calls int
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancelFn()
	}()

	err := r.Run(ctx, func(context.Context) error {
		calls++
		return okmergeerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIntervalBetweenAttempts(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	const interval = 50 * time.Millisecond
	r := New(WithInterval(interval), WithMaxRetries(3))

	var retryTimes []time.Time

	err := r.Run(context.Background(), func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		return okmergeerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)
	require.Error(t, err)

	require.Len(t, retryTimes, 4)
	for i := 1; i < len(retryTimes); i++ {
		d := retryTimes[i].Sub(retryTimes[i-1])
		require.GreaterOrEqualf(t, d, interval,
			"time between retry %d and %d is %s, expected >=%s",
			i-1, i, d, interval,
		)
	}
}

func TestRunReturnsContextErrorWhenDeadlineIsBeforeNextAttempt(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(time.Hour))

	ctx, cancelFn := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelFn()

	var calls int
	err := r.Run(ctx, func(context.Context) error {
		calls++
		return okmergeerr.NewRetryableAnytimeError(errors.New("pending"))
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var exhaustedErr *RetriesExhaustedError
	assert.False(t, errors.As(err, &exhaustedErr), "error must not report an exhausted budget: %s", err)
	assert.Equal(t, 1, calls)
}

func TestRunFromWithoutRemainingRetriesRunsOnce(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval), WithMaxRetries(5))

	var calls int
	err := r.RunFrom(context.Background(), 5, func(context.Context) error {
		calls++
		return okmergeerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	var exhaustedErr *RetriesExhaustedError
	require.ErrorAs(t, err, &exhaustedErr)
	assert.Equal(t, uint(6), exhaustedErr.Attempts)
	assert.Equal(t, 1, calls)
}

func TestRunWithoutRetries(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval), WithMaxRetries(0))

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return okmergeerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	var exhaustedErr *RetriesExhaustedError
	require.ErrorAs(t, err, &exhaustedErr)
	assert.Equal(t, 1, calls)
}

func TestRunWaitsUntilRetryAfter(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	const retryAfter = 150 * time.Millisecond
	r := New(WithInterval(50*time.Millisecond), WithMaxRetries(5))

	var retryTimes []time.Time

	err := r.Run(context.Background(), func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		if len(retryTimes) == 1 {
			return okmergeerr.NewRetryableError(errors.New("rate limit exceeded"), time.Now().Add(retryAfter))
		}

		return nil
	}, nil)
	require.NoError(t, err)

	require.Len(t, retryTimes, 2)
	d := retryTimes[1].Sub(retryTimes[0])
	assert.GreaterOrEqualf(t, d, retryAfter, "retry happened after %s, expected >=%s", d, retryAfter)
}

func TestRunFailsWhenRetryAfterIsBehindBudget(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithInterval(testInterval), WithMaxRetries(5))
	origErr := errors.New("rate limit exceeded")

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return okmergeerr.NewRetryableError(origErr, time.Now().Add(time.Hour))
	}, nil)

	require.ErrorIs(t, err, origErr)

	var exhaustedErr *RetriesExhaustedError
	assert.False(t, errors.As(err, &exhaustedErr))
	assert.Equal(t, 1, calls)
}
