// Package retry runs an operation up to a fixed attempt budget with linear or
// exponential backoff and reports the outcome as data instead of an error.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/dukex/stepflow/pkg/failure"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options configures a retry loop.
type Options struct {
	// MaxRetries is the total attempt budget, including the first attempt.
	MaxRetries int
	// BaseDelay is the wait after the first failure.
	BaseDelay time.Duration
	// UseExponentialBackoff doubles the wait after every failure.
	UseExponentialBackoff bool
	// Jitter in [0, 1] shortens each wait by a random fraction of up to
	// Jitter. Zero disables jitter.
	Jitter float64
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Sleep replaces the context-aware timer, mostly for tests.
	Sleep Sleeper
}

// Outcome is the result of a retry loop.
type Outcome[T any] struct {
	Success  bool
	Result   T
	Err      error
	Attempts int
	// Terminated is set when the loop stopped on a terminal error.
	Terminated bool
}

// WithStats invokes op until it succeeds, returns a terminal error, or the
// attempt budget is exhausted. Exhaustion is reported through the outcome.
func WithStats[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) Outcome[T] {
	maxRetries := max(opts.MaxRetries, 1)

	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return Outcome[T]{Success: true, Result: result, Attempts: attempt}
		}

		lastErr = err

		if !retryable(err) {
			return Outcome[T]{Err: err, Attempts: attempt, Terminated: true}
		}

		if attempt == maxRetries {
			break
		}

		wait := Backoff(opts, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, wait)
		}

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return Outcome[T]{Err: failure.TerminateWith(sleepErr), Attempts: attempt, Terminated: true}
		}
	}

	return Outcome[T]{Err: lastErr, Attempts: maxRetries}
}

// retryable defers to the error's Kind. Unclassified errors are step failures.
func retryable(err error) bool {
	var classified *failure.Error
	if errors.As(err, &classified) {
		return classified.Retryable()
	}

	return true
}

// Backoff returns the wait after the given failed attempt (1-indexed), i.e.
// before attempt+1. Linear waits BaseDelay every time; exponential waits
// BaseDelay * 2^(attempt-1).
func Backoff(opts Options, attempt int) time.Duration {
	if opts.BaseDelay <= 0 || attempt < 1 {
		return 0
	}

	wait := opts.BaseDelay
	if opts.UseExponentialBackoff {
		factor := math.Pow(2, float64(attempt-1))
		if float64(wait)*factor >= math.MaxInt64 {
			wait = time.Duration(math.MaxInt64)
		} else {
			wait = time.Duration(float64(wait) * factor)
		}
	}

	if opts.Jitter > 0 {
		jitter := min(opts.Jitter, 1)
		wait = time.Duration(float64(wait) * (1 - jitter*rand.Float64())) //nolint:gosec // jitter does not need crypto rand
	}

	return wait
}

// Sleep waits for d, returning ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
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
