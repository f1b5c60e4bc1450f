package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFatal = errors.New("fatal")

func fastPolicy(attempts uint) Policy {
	return Policy{
		Name:        "test",
		MaxAttempts: attempts,
		Retryable:   func(err error) bool { return !errors.Is(err, errFatal) },
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, uint(3), attempts)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtCeiling(t *testing.T) {
	attempts, err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		return errors.New("still down")
	})

	require.EqualError(t, err, "still down")
	assert.Equal(t, uint(3), attempts)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestDoLogsOnlyRetriesThatHappen(t *testing.T) {
	logs := captureLogs(t)

	attempts, err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		return errors.New("still down")
	})

	require.Error(t, err)
	assert.Equal(t, uint(3), attempts)
	assert.Equal(t, 2, strings.Count(logs.String(), "retrying call"))
	assert.Contains(t, logs.String(), "attempt=2")
	assert.NotContains(t, logs.String(), "attempt=3")
}

func TestDoDoesNotRepeatFatalErrors(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})

	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, uint(1), attempts)
	assert.Equal(t, 1, calls)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := fastPolicy(0).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayBackoffIsCapped(t *testing.T) {
	p := DefaultPolicy("llm")

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 10*time.Second, p.Delay(5))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.True(t, IsTransient(&StatusError{StatusCode: 503}))
	assert.True(t, IsTransient(&StatusError{StatusCode: 429}))
	assert.False(t, IsTransient(&StatusError{StatusCode: 400}))
	assert.False(t, IsTransient(&StatusError{StatusCode: 404}))
	assert.False(t, IsTransient(Permanent(errors.New("count mismatch"))))
	assert.False(t, IsTransient(context.Canceled))

	assert.True(t, IsStatus(fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 404}), 404))
	assert.ErrorIs(t, Permanent(errFatal), errFatal)
}
