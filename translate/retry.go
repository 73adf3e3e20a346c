package translate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ---------------------------------------------------------------------------
// Retry with exponential backoff
// ---------------------------------------------------------------------------

// RetryPolicy retries a failing call with exponential backoff. The n-th
// wait (starting at 0) is BaseDelay * 2^n, multiplied by a random factor
// in [1, 2) so that parallel workers do not retry in lockstep.
type RetryPolicy struct {
	// Attempts is the total number of calls, including the first. Default: 3.
	Attempts int
	// BaseDelay is the wait before the second attempt. Default: 1s.
	BaseDelay time.Duration
	// Jitter returns a value in [0, 1). Default: math/rand/v2.
	Jitter func() float64
	// Sleep waits for d or until ctx is done. Default: a timer select.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, 1s base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Second}
}

func (p *RetryPolicy) effectiveAttempts() int {
	if p.Attempts > 0 {
		return p.Attempts
	}
	return 3
}

func (p *RetryPolicy) effectiveBaseDelay() time.Duration {
	if p.BaseDelay > 0 {
		return p.BaseDelay
	}
	return time.Second
}

// Backoff returns the wait after the given zero-based failed attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	jitter := rand.Float64
	if p.Jitter != nil {
		jitter = p.Jitter
	}
	base := float64(p.effectiveBaseDelay()) * math.Pow(2, float64(attempt))
	return time.Duration(base * (1 + jitter()))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds or the attempts run out. On exhaustion the
// returned error wraps both ErrRetriesExhausted and the last failure.
// Context cancellation stops retrying immediately.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	sleep := sleepContext
	if p.Sleep != nil {
		sleep = p.Sleep
	}
	attempts := p.effectiveAttempts()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
