package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	attempts := 0
	boom := errors.New("fatal")
	err := Do(context.Background(), 5, time.Millisecond, func(context.Context) error {
		attempts++
		return Permanent(boom)
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestDoValReturnsValue(t *testing.T) {
	attempts := 0
	val, err := DoVal(context.Background(), 3, time.Millisecond, func(context.Context) (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, 10, time.Minute, func(context.Context) error {
			attempts++
			return errors.New("transient")
		})
	}()

	// Let the first attempt run, then cancel during the back-off sleep.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestDoBackoffDelaysDouble(t *testing.T) {
	var stamps []time.Time
	_ = Do(context.Background(), 3, 40*time.Millisecond, func(context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("transient")
	})
	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 40*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 80*time.Millisecond)
}
