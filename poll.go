package main

import (
	"context"
	"fmt"
	"time"
)

// PollPolicy bounds a poll: at most MaxAttempts probes, Interval apart
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Probe inspects the world once. done stops the poll with value;
// a non-nil error stops it immediately.
type Probe[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Poll runs probe until it reports done, fails, the context ends or the
// attempts run out. Exhaustion returns the last value with ErrPollExhausted.
func Poll[T any](ctx context.Context, policy PollPolicy, probe Probe[T]) (T, error) {
	var last T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		value, done, err := probe(ctx, i+1)
		if err != nil {
			return value, err
		}
		if done {
			return value, nil
		}
		last = value

		if i < attempts-1 {
			if err := sleep(ctx, policy.Interval); err != nil {
				return last, err
			}
		}
	}
	return last, fmt.Errorf("%w after %d attempts", ErrPollExhausted, attempts)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
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
