package okmergeerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsRetryable(t *testing.T) {
	origErr := errors.New("rate limited")
	err := fmt.Errorf("fetching pull request failed: %w", NewRetryableAnytimeError(origErr))

	retryErr, ok := AsRetryable(err)
	require.True(t, ok)
	assert.ErrorIs(t, err, origErr)
	assert.True(t, retryErr.After.IsZero())

	_, ok = AsRetryable(origErr)
	assert.False(t, ok)
}

func TestWaitTime(t *testing.T) {
	assert.Equal(t, time.Second, NewRetryableAnytimeError(errors.New("err")).WaitTime(time.Second))

	past := NewRetryableError(errors.New("err"), time.Now().Add(-time.Hour))
	assert.Equal(t, time.Second, past.WaitTime(time.Second))

	future := NewRetryableError(errors.New("err"), time.Now().Add(time.Hour))
	assert.Greater(t, future.WaitTime(time.Second), 59*time.Minute)
}

func TestRetryableErrorStringContainsRetryTime(t *testing.T) {
	after := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := NewRetryableError(errors.New("err"), after)

	assert.Contains(t, err.Error(), "not before 2026-01-02T03:04:05Z")
	assert.Equal(t, "retryable error: err", NewRetryableAnytimeError(errors.New("err")).Error())
}
