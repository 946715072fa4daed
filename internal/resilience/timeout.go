package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout enforces d on fn, returning a transient-classified timeout
// error if the deadline passes before fn completes. fn must itself
// respect ctx cancellation at its suspension points (spec.md §5).
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		return zero, fmt.Errorf("operation timed out after %s: %w", d, cctx.Err())
	}
}

// Fallback runs primary; on error it runs fallback and returns its result
// instead, used by C8's reranker identity fallback and similar
// degrade-gracefully paths.
func Fallback[T any](ctx context.Context, primary func(context.Context) (T, error), fallback func(context.Context, error) T) T {
	v, err := primary(ctx)
	if err != nil {
		return fallback(ctx, err)
	}
	return v
}
