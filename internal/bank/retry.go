// Package bank holds helpers shared by the bank backend adapters.
package bank

import (
	"context"
	"math"
	"time"
)

// RetryOptions controls Retry's backoff schedule.
type RetryOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions matches the transport-level policy used against both
// bank backends: 3 retries, 100ms initial delay, doubled per attempt, capped
// at 5s.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// Retry runs fn up to opts.MaxRetries+1 times with exponential backoff,
// returning the first success or the last error. It stops early when ctx is
// done.
func Retry[T any](ctx context.Context, opts RetryOptions, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == opts.MaxRetries {
			break
		}
		delay := time.Duration(float64(opts.InitialDelay) * math.Pow(opts.Multiplier, float64(attempt)))
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}
