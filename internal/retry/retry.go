// Package retry runs blocking capability calls with a per-call timeout and
// bounded, backed-off retries.
package retry

import (
	"context"
	"errors"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 8 * time.Second
)

// Policy controls retries for one class of calls.
//
// Zero values pick defaults, except BaseDelay < 0 which disables waiting
// between attempts and CallTimeout <= 0 which disables the per-call timeout.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// Backoff returns the wait after the given failed attempt (1-based): BaseDelay doubled
// per attempt, capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base < 0 {
		return 0
	}
	if base == 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Do calls fn until it succeeds, shouldRetry rejects the error, or attempts run out.
// It returns the number of attempts made. Cancellation of ctx stops retrying and
// returns ctx.Err(); a per-call timeout is reported as context.DeadlineExceeded
// from fn and is retried like any other failure.
func Do[T any](ctx context.Context, p Policy, shouldRetry func(error) bool, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		out, err := call(ctx, p.CallTimeout, fn)
		if err == nil {
			return out, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, attempt, ctxErr
		}
		lastErr = err
		if attempt == attempts || (shouldRetry != nil && !shouldRetry(err)) {
			return zero, attempt, lastErr
		}
		if err := Sleep(ctx, p.Backoff(attempt)); err != nil {
			return zero, attempt, err
		}
	}
	return zero, attempts, lastErr
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
		// Some clients surface the deadline as a transport error; normalize it.
		err = errors.Join(context.DeadlineExceeded, err)
	}
	return out, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
