package observation

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/fieldlog/internal/errors"
)

// CallWithTimeout runs fn bounded by d. When the bound expires first, it
// returns ErrTimedOut without waiting for fn, which keeps running until it
// observes its cancelled context. A non-positive d only applies ctx.
//
// Callers holding a per-user lock must use CallSettled instead, or the lock
// is released while fn may still be writing.
func CallWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return timeoutResult(ctx, d, r.value, r.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimedOut, d)
		}
		return zero, ctx.Err()
	}
}

// CallSettled runs fn with a context bounded by d and returns only after fn
// has returned. A write that completes after the deadline is reported as a
// success. A non-positive d only applies ctx.
func CallSettled[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(ctx)
	return timeoutResult(ctx, d, v, err)
}

func timeoutResult[T any](ctx context.Context, d time.Duration, v T, err error) (T, error) {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w after %s: %w", ErrTimedOut, d, err)
	}
	return v, err
}

// RunWithTimeout is CallWithTimeout for operations without a result.
func RunWithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	_, err := CallWithTimeout(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RunSettled is CallSettled for operations without a result.
func RunSettled(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	_, err := CallSettled(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
