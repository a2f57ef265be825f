package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// Attempts is the maximum number of retries after the first try.
	// Zero disables retries.
	Attempts int

	// Backoff is the initial backoff duration.
	// Default: 500ms
	Backoff time.Duration

	// MaxBackoff caps the backoff duration.
	// Default: 10s
	MaxBackoff time.Duration
}

// DefaultPolicy returns a policy with sensible defaults for temp storage.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// done, or the policy's attempts are used up.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.Attempts; attempt++ {
		if attempt > 0 {
			if err := p.wait(ctx, attempt); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	if p.Attempts == 0 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", p.Attempts+1, lastErr)
}

// wait sleeps for an exponentially increasing duration with jitter.
func (p Policy) wait(ctx context.Context, attempt int) error {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	backoff *= time.Duration(1 << uint(attempt-1))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}

	// 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
