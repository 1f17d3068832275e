package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoBackoffDeterminism(t *testing.T) {
	// maxRetries=3 means 4 total attempts with delays >=20ms, >=40ms, >=80ms.
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		AddJitter:    false,
	}

	calls := 0
	var delays []time.Duration
	start := time.Now()
	last := start
	err := DoWithObserver(context.Background(), cfg, func() error {
		calls++
		now := time.Now()
		delays = append(delays, now.Sub(last))
		last = now
		return errors.New("always fails")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)

	require.Len(t, delays, 4)
	assert.GreaterOrEqual(t, delays[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[2], 40*time.Millisecond)
	assert.GreaterOrEqual(t, delays[3], 80*time.Millisecond)
}

func TestDoNonRetryableShortCircuit(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		calls++
		return NonRetryable(errors.New("bad request"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsNonRetryable(err))
}

func TestDoRetryIfPredicate(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := DefaultConfig()
	cfg.AddJitter = false
	cfg.InitialDelay = time.Millisecond
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Do(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestDoObserverSeesAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	var observed []Attempt
	_ = DoWithObserver(context.Background(), cfg, func() error {
		return errors.New("fail")
	}, func(a Attempt) {
		observed = append(observed, a)
	})

	// The final attempt has no retry following it, so it is not observed.
	require.Len(t, observed, 2)
	assert.Equal(t, 1, observed[0].Number)
	assert.Equal(t, 2, observed[1].Number)
}

func TestDoWithResult(t *testing.T) {
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	attempts := 0
	v, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, attempts)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	err := Do(context.Background(), Config{InitialDelay: -1}, func() error { return nil })
	assert.Error(t, err)

	err = Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, func() error { return nil })
	assert.Error(t, err)
}
