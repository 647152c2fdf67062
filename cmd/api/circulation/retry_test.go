package circulation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestRetryOnBusy(t *testing.T) {
	cfg := retryConfig{maxAttempts: 4, baseDelay: time.Millisecond, jitterFactor: 0.3}

	t.Run("retries busy errors until success", func(t *testing.T) {
		is := is.New(t)

		calls, retries := 0, 0
		err := retryOnBusy(context.Background(), cfg, func(int, error) { retries++ }, func(context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("committing: %w", ErrResponseBusy)
			}
			return nil
		})
		is.NoErr(err)
		is.Equal(calls, 3)
		is.Equal(retries, 2)
	})

	t.Run("gives up after max attempts with the busy error", func(t *testing.T) {
		is := is.New(t)

		calls := 0
		err := retryOnBusy(context.Background(), cfg, nil, func(context.Context) error {
			calls++
			return ErrResponseBusy
		})
		is.True(errors.Is(err, ErrResponseBusy))
		is.Equal(calls, cfg.maxAttempts)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		is := is.New(t)

		calls := 0
		err := retryOnBusy(context.Background(), cfg, nil, func(context.Context) error {
			calls++
			return ErrResponseUnavailable
		})
		is.True(errors.Is(err, ErrResponseUnavailable))
		is.Equal(calls, 1)
	})

	t.Run("stops waiting when the context is done", func(t *testing.T) {
		is := is.New(t)

		ctx, cancel := context.WithCancel(context.Background())
		slow := retryConfig{maxAttempts: 3, baseDelay: time.Hour}
		calls := 0
		err := retryOnBusy(ctx, slow, func(int, error) { cancel() }, func(context.Context) error {
			calls++
			return ErrResponseBusy
		})
		is.True(errors.Is(err, context.Canceled))
		is.Equal(calls, 1)
	})
}
