package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"noteposter/core"
	"noteposter/logging"
)

// RetryController wraps a remote-call step with the pipeline's retry
// policy: autoRetryCount+1 attempts, exponential backoff of 2^attemptIndex
// seconds between attempts, retrying only errors classified retryable.
// Only the error from the last attempt is surfaced.
type RetryController struct {
	// AutoRetryCount is the number of automatic re-attempts after the
	// first try.
	AutoRetryCount int

	// Sleep waits out the backoff. Injectable so tests run instantly;
	// nil means a context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryController builds a controller with the real clock.
func NewRetryController(autoRetryCount int) *RetryController {
	return &RetryController{AutoRetryCount: autoRetryCount}
}

// Do runs op up to AutoRetryCount+1 times. Between attempts it waits
// 2^attemptIndex seconds, but only when the error is retryable and
// attempts remain; otherwise the error propagates immediately.
func (r *RetryController) Do(ctx context.Context, log *logging.Logger, stepName string, op func() error) error {
	attempts := r.AutoRetryCount + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attemptIndex := 0; attemptIndex < attempts; attemptIndex++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !core.IsRetryable(lastErr) || attemptIndex == attempts-1 {
			return lastErr
		}

		backoff := time.Duration(1<<uint(attemptIndex)) * time.Second
		if log != nil {
			log.Warn("step failed, retrying",
				zap.String("step", stepName),
				zap.Int("attempt", attemptIndex+1),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
		}
		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}
	}
	return lastErr
}

func (r *RetryController) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
