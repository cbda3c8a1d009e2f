package retry

import (
	"context"
	"time"
)

// Policy describes how many times an operation may be attempted and how long
// to wait between attempts. It is a plain value object so callers can assert
// retry behavior in tests without driving real timers.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// Exponential returns a backoff function that doubles from base up to max
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Constant returns a backoff function with a fixed delay
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Wait sleeps for the backoff of the given attempt (1-based) or returns early
// with the context error if the context is cancelled first
func (p Policy) Wait(ctx context.Context, attempt int) error {
	var d time.Duration
	if p.Backoff != nil {
		d = p.Backoff(attempt)
	}
	if d <= 0 {
		return ctx.Err()
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

// Exhausted reports whether the given attempt count has used up the policy
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
