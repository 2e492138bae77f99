package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy controls a bounded retry loop
type Policy struct {
	// Attempts is the maximum number of tries (minimum 1)
	Attempts int

	// Interval is the fixed delay between tries
	Interval time.Duration

	// Timeout bounds the whole loop, including sleeps. Zero means no bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Do runs fn until it succeeds, attempts are exhausted, the timeout elapses,
// or the context is cancelled. The last error is returned wrapped with the
// attempt count. Sleeps are timer-driven and abort immediately on
// cancellation.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < attempts {
			if err := Sleep(ctx, policy.Interval); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so that Do stops retrying and returns it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Sleep waits for d or until the context is cancelled, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
