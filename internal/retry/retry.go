package retry

import (
	"context"
	"errors"
	"time"
)

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

func (p Permanent) Error() string {
	return p.Err.Error()
}

func (p Permanent) Unwrap() error {
	return p.Err
}

// Fail marks err as non-retryable.
func Fail(err error) error {
	if err == nil {
		return nil
	}
	return Permanent{Err: err}
}

// Policy is a bounded retry schedule shared by the network-calling
// components. MaxAttempts counts the initial attempt.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Once retries a single time after Backoff.
func Once(backoff time.Duration) Policy {
	return Policy{MaxAttempts: 2, Backoff: backoff}
}

// Do runs fn until it succeeds, attempts are exhausted, the error is
// permanent, or ctx is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm Permanent
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}
