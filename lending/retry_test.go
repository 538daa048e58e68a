package lending_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

func Test_RetryWithExponentialBackoff_Success_NoRetries(t *testing.T) {
	callCount := 0

	meta, err := lending.RetryWithExponentialBackoff(context.Background(), func(_ context.Context) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, time.Duration(0), meta.TotalDelay)
	assert.Equal(t, "none", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_RetriesTransientPersistenceFailures(t *testing.T) {
	callCount := 0

	meta, err := lending.RetryWithExponentialBackoff(
		context.Background(),
		func(_ context.Context) error {
			callCount++
			if callCount < 3 {
				return fmt.Errorf("append: %w", lending.ErrTransientPersistence)
			}
			return nil
		},
		lending.WithBaseDelay(time.Millisecond),
	)

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.Greater(t, meta.TotalDelay, time.Duration(0))
	assert.Equal(t, "none", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_FailsFastOnOtherErrors(t *testing.T) {
	permanent := errors.New("disk full")
	callCount := 0

	meta, err := lending.RetryWithExponentialBackoff(context.Background(), func(_ context.Context) error {
		callCount++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, "other", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_StopsAfterMaxAttempts(t *testing.T) {
	callCount := 0

	meta, err := lending.RetryWithExponentialBackoff(
		context.Background(),
		func(_ context.Context) error {
			callCount++
			return lending.ErrTransientPersistence
		},
		lending.WithMaxAttempts(3),
		lending.WithBaseDelay(time.Millisecond),
		lending.WithJitterFactor(0),
	)

	assert.ErrorIs(t, err, lending.ErrTransientPersistence)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.Equal(t, 3*time.Millisecond, meta.TotalDelay)
	assert.Equal(t, "transient_persistence", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	_, err := lending.RetryWithExponentialBackoff(
		ctx,
		func(_ context.Context) error {
			callCount++
			cancel()
			return lending.ErrTransientPersistence
		},
		lending.WithBaseDelay(time.Second),
	)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func Test_RetryWithExponentialBackoff_InvalidOptions(t *testing.T) {
	fn := func(_ context.Context) error { return nil }

	_, err := lending.RetryWithExponentialBackoff(context.Background(), fn, lending.WithMaxAttempts(0))
	assert.ErrorIs(t, err, lending.ErrInvalidMaxAttempts)

	_, err = lending.RetryWithExponentialBackoff(context.Background(), fn, lending.WithBaseDelay(-time.Second))
	assert.ErrorIs(t, err, lending.ErrNegativeBaseDelay)

	_, err = lending.RetryWithExponentialBackoff(context.Background(), fn, lending.WithJitterFactor(1.5))
	assert.ErrorIs(t, err, lending.ErrInvalidJitterFactor)
}

func Test_RetryWithExponentialBackoff_JitterStaysWithinFactor(t *testing.T) {
	for i := 0; i < 20; i++ {
		meta, err := lending.RetryWithExponentialBackoff(
			context.Background(),
			func(_ context.Context) error {
				return lending.ErrTransientPersistence
			},
			lending.WithBaseDelay(time.Millisecond),
			lending.WithMaxAttempts(3),
			lending.WithJitterFactor(0.5),
		)

		assert.ErrorIs(t, err, lending.ErrTransientPersistence)
		assert.Equal(t, 3, meta.Attempts)
		assert.GreaterOrEqual(t, meta.TotalDelay, 3*time.Millisecond)
		assert.Less(t, meta.TotalDelay, 4500*time.Microsecond)
	}
}
