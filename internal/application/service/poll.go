// Package service holds small domain-neutral helpers shared by use cases.
package service

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned by Poll when every attempt has been used
// without the predicate succeeding.
var ErrExhausted = errors.New("poll: attempts exhausted")

// PollPolicy is a bounded retry policy for eventually-consistent lookups.
type PollPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// Backoff yields the wait before attempt n (1-based). Not consulted
	// before the first attempt; InitialDelay covers that.
	Backoff func(attempt int) time.Duration
}

// LinearBackoff grows the wait by step per attempt: step, 2*step, ...
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Poll runs fn up to MaxAttempts times until it reports done. Attempt
// errors are tolerated and polling continues; the last one is wrapped
// into the exhaustion error. Sleeps honor ctx cancellation.
func Poll[T any](ctx context.Context, p PollPolicy, fn func(attempt int) (T, bool, error)) (T, int, error) {
	var zero T
	var lastErr error

	if err := sleep(ctx, p.InitialDelay); err != nil {
		return zero, 0, err
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 && p.Backoff != nil {
			if err := sleep(ctx, p.Backoff(attempt-1)); err != nil {
				return zero, attempt - 1, err
			}
		}

		val, done, err := fn(attempt)
		if err != nil {
			lastErr = err
			continue
		}
		if done {
			return val, attempt, nil
		}
	}

	if lastErr != nil {
		return zero, p.MaxAttempts, errors.Join(ErrExhausted, lastErr)
	}
	return zero, p.MaxAttempts, ErrExhausted
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
