package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Retry(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("retries retryable errors", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Retry(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return ErrServiceUnavailable
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("non-retryable errors surface immediately", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("fatal")
		err := fastPolicy().Retry(context.Background(), func(ctx context.Context) error {
			calls++
			return sentinel
		})
		if !errors.Is(err, sentinel) || calls != 1 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("exhausted budget wraps the last error", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Retry(context.Background(), func(ctx context.Context) error {
			calls++
			return &RateLimitError{Service: "test", RetryAfter: time.Millisecond}
		})
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("expected ErrRateLimited in chain, got %v", err)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := fastPolicy().Retry(ctx, func(ctx context.Context) error {
			t.Fatal("fn should not run with a cancelled context")
			return nil
		})
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestDelay(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	t.Run("doubles per attempt", func(t *testing.T) {
		if got := p.delay(0, ErrServiceUnavailable); got != 100*time.Millisecond {
			t.Errorf("attempt 0: %v", got)
		}
		if got := p.delay(1, ErrServiceUnavailable); got != 200*time.Millisecond {
			t.Errorf("attempt 1: %v", got)
		}
		if got := p.delay(2, ErrServiceUnavailable); got != 400*time.Millisecond {
			t.Errorf("attempt 2: %v", got)
		}
	})

	t.Run("caps at max delay", func(t *testing.T) {
		if got := p.delay(10, ErrServiceUnavailable); got != time.Second {
			t.Errorf("expected cap, got %v", got)
		}
	})

	t.Run("retry-after hint wins", func(t *testing.T) {
		err := &RateLimitError{Service: "test", RetryAfter: 300 * time.Millisecond}
		if got := p.delay(0, err); got != 300*time.Millisecond {
			t.Errorf("expected hint, got %v", got)
		}
	})

	t.Run("retry-after is still capped", func(t *testing.T) {
		err := &RateLimitError{Service: "test", RetryAfter: time.Minute}
		if got := p.delay(0, err); got != time.Second {
			t.Errorf("expected cap, got %v", got)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &RateLimitError{Service: "x"}, true},
		{"service unavailable", ErrServiceUnavailable, true},
		{"timeout", ErrTimeout, true},
		{"auth failure", ErrAuthFailed, false},
		{"not found", ErrSourceNotFound, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func TestSleepWithContext(t *testing.T) {
	t.Run("returns early on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		err := SleepWithContext(ctx, time.Minute)
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("cancellation took too long: %v", elapsed)
		}
	})

	t.Run("zero duration is immediate", func(t *testing.T) {
		if err := SleepWithContext(context.Background(), 0); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
