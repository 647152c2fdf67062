package circulation

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

// retryOnBusy runs fn until it succeeds, fails with a non Busy error or
// maxAttempts is reached. Delays grow as baseDelay * 2^(attempt-1) plus jitter.
func retryOnBusy(ctx context.Context, cfg retryConfig, onRetry func(attempt int, err error), fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return lastErr
		}
		if onRetry != nil && attempt < cfg.maxAttempts-1 {
			onRetry(attempt+1, lastErr)
		}
	}

	return lastErr
}

func isBusy(err error) bool {
	return errors.Is(err, ErrResponseBusy)
}
