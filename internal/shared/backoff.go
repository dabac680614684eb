package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackoffPolicy retries an operation with bounded exponential delays.
//
// Only errors classified by [IsRetryable] are retried; everything else
// surfaces immediately. A [RateLimitError] carrying a Retry-After hint
// overrides the computed delay for that attempt.
type BackoffPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on any single delay
}

// DefaultBackoff mirrors the retry posture used against both catalogs:
// three attempts, half-second base, capped at ten seconds total per delay.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted.
func (p BackoffPolicy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, ctxErr)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		if sleepErr := SleepWithContext(ctx, p.delay(attempt, err)); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// delay computes the wait before the next attempt. attempt is zero-based.
func (p BackoffPolicy) delay(attempt int, err error) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	d := base << attempt

	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		d = rl.RetryAfter
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// SleepWithContext waits for the given duration or until the context ends.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case <-timer.C:
		return nil
	}
}
