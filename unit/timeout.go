package unit

import (
	"context"
	"time"

	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/stream"
)

// WithTimeout returns a Middleware that bounds each invocation with a
// deadline. A deadline hit surfaces as a CANCELED unit error wrapping
// context.DeadlineExceeded. For streams the deadline covers the whole
// consumption window, not each chunk.
func WithTimeout[I, O any](d time.Duration) Middleware[I, O] {
	return func(inner Unit[I, O]) Unit[I, O] {
		if d <= 0 {
			return inner
		}
		return &timeoutUnit[I, O]{inner: inner, timeout: d}
	}
}

type timeoutUnit[I, O any] struct {
	inner   Unit[I, O]
	timeout time.Duration
}

func (t *timeoutUnit[I, O]) Name() string { return t.inner.Name() }

func (t *timeoutUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	output, err := t.inner.Invoke(ctx, input)
	if err != nil && ctx.Err() != nil {
		var zero O
		return zero, errors.Canceled(t.inner.Name(), ctx.Err())
	}
	return output, err
}

func (t *timeoutUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)

	it, err := Stream(ctx, t.inner, input)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, errors.Canceled(t.inner.Name(), ctx.Err())
		}
		return nil, err
	}

	// Chunks are pulled under the deadline context so the window bounds
	// the whole consumption, not just the initial Stream call.
	return stream.FromFunc(func(nextCtx context.Context) (O, bool, error) {
		if err := nextCtx.Err(); err != nil {
			var zero O
			return zero, false, errors.Canceled(t.inner.Name(), err)
		}
		val, ok, err := it.Next(ctx)
		if err != nil && ctx.Err() != nil {
			err = errors.Canceled(t.inner.Name(), ctx.Err())
		}
		return val, ok, err
	}, func() error {
		cancel()
		return it.Close()
	}), nil
}
