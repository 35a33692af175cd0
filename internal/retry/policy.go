package retry

import (
	"context"
	"errors"
	"time"

	"audiotagger/internal/services"
)

const (
	DefaultAttempts   = 5
	DefaultMultiplier = 2 * time.Second
	DefaultMinWait    = 4 * time.Second
	DefaultMaxWait    = 60 * time.Second
)

// Policy retries a fallible operation with bounded exponential backoff.
//
// The wait before attempt n+1 is Multiplier * 2^(n-1), clamped to
// [MinWait, MaxWait]. When every attempt fails the last error is returned
// unchanged so callers can still classify it with errors.Is / errors.As.
type Policy struct {
	Attempts   int
	Multiplier time.Duration
	MinWait    time.Duration
	MaxWait    time.Duration

	// Retryable decides whether a failure warrants another attempt. Nil
	// retries every failure.
	Retryable func(error) bool

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(context.Context, time.Duration) error

	// OnRetry is invoked after a failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns the policy used for remote analysis calls.
func Default() Policy {
	return Policy{
		Attempts:   DefaultAttempts,
		Multiplier: DefaultMultiplier,
		MinWait:    DefaultMinWait,
		MaxWait:    DefaultMaxWait,
	}
}

// WithRetryable returns a copy of p that consults fn before retrying.
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// WithOnRetry returns a copy of p that reports retries to fn.
func (p Policy) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Policy {
	p.OnRetry = fn
	return p
}

// Always retries every failure.
func Always(error) bool { return true }

// UnlessLocalResource retries everything except local resource failures,
// which cannot succeed on a later attempt.
func UnlessLocalResource(err error) bool {
	return !errors.Is(err, services.ErrLocalResource)
}

// Do runs op until it succeeds, a non-retryable error occurs, or the attempt
// budget is exhausted.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.attempts()
	var zero T
	for attempt := 1; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= attempts || !p.retryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, err
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return zero, err
		}
	}
}

// Delay returns the wait that follows the given 1-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	maxWait := p.MaxWait
	delay := p.Multiplier
	if delay < 0 {
		delay = 0
	}
	for i := 1; i < attempt && delay > 0; i++ {
		if maxWait > 0 && delay > maxWait/2 {
			delay = maxWait
			break
		}
		delay *= 2
	}
	if delay < p.MinWait {
		delay = p.MinWait
	}
	if maxWait > 0 && delay > maxWait {
		delay = maxWait
	}
	return delay
}

func (p Policy) attempts() int {
	if p.Attempts <= 0 {
		return 1
	}
	return p.Attempts
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	return SleepWithContext(ctx, delay)
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
