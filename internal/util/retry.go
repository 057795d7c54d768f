package util

import (
	"context"
	"errors"
	"time"
)

// RetryWithContext calls fn up to maxTries times, sleeping wait between attempts
// and doubling it each time. Context errors are returned immediately.
func RetryWithContext[T any](ctx context.Context, maxTries int, wait time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
		if i < maxTries-1 && wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return zero, err
			}
			wait *= 2
		}
	}
	return zero, lastErr
}

// RetryErrWithContext is RetryWithContext for functions without a result.
func RetryErrWithContext(ctx context.Context, maxTries int, wait time.Duration, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, wait, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
