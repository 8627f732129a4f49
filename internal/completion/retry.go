package completion

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region transient

// isTransient reports whether a failed call may succeed if repeated.
func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// #endregion transient

// #region with-retry

// withRetry runs fn until it succeeds, fails permanently, or the attempt
// budget is spent. The delay doubles after each transient failure, capped at
// cfg.MaxDelay.
func withRetry(ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.BaseDelay

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(ctx)
		if err == nil || !isTransient(err) || i == attempts || ctx.Err() != nil {
			return err
		}

		log.Printf("[LLM] %s attempt %d/%d failed: %v (retry in %s)", op, i, attempts, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}

// #endregion with-retry
