package unit

import (
	"context"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/stream"
)

// WithCallbacks returns a Middleware that emits lifecycle events on the
// given bus: UnitStart before the inner unit runs, UnitEnd or UnitError
// after it, and a Chunk event per streamed element. Events carry the run
// identity from the context; a run is created if none is present.
//
// Placed inside a retry wrapper the bus observes every attempt, so the
// usual composition is Chain(WithRetry(...), WithCallbacks(bus)).
func WithCallbacks[I, O any](bus *callback.Bus) Middleware[I, O] {
	return func(inner Unit[I, O]) Unit[I, O] {
		if bus == nil {
			return inner
		}
		return &callbackUnit[I, O]{inner: inner, bus: bus}
	}
}

type callbackUnit[I, O any] struct {
	inner Unit[I, O]
	bus   *callback.Bus
}

func (c *callbackUnit[I, O]) Name() string { return c.inner.Name() }

func (c *callbackUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	ctx, _ = callback.EnsureRun(ctx)
	c.bus.Emit(ctx, callback.Event{
		Type:  callback.UnitStart,
		Unit:  c.inner.Name(),
		Input: input,
	})

	output, err := c.inner.Invoke(ctx, input)
	if err != nil {
		c.bus.Emit(ctx, callback.Event{
			Type: callback.UnitError,
			Unit: c.inner.Name(),
			Err:  err,
		})
		return output, err
	}

	c.bus.Emit(ctx, callback.Event{
		Type:   callback.UnitEnd,
		Unit:   c.inner.Name(),
		Output: output,
	})
	return output, nil
}

func (c *callbackUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	ctx, _ = callback.EnsureRun(ctx)
	c.bus.Emit(ctx, callback.Event{
		Type:  callback.UnitStart,
		Unit:  c.inner.Name(),
		Input: input,
	})

	it, err := Stream(ctx, c.inner, input)
	if err != nil {
		c.bus.Emit(ctx, callback.Event{
			Type: callback.UnitError,
			Unit: c.inner.Name(),
			Err:  err,
		})
		return nil, err
	}

	index := 0
	done := false
	finish := func(err error) {
		if done {
			return
		}
		done = true
		if err != nil {
			c.bus.Emit(ctx, callback.Event{
				Type: callback.UnitError,
				Unit: c.inner.Name(),
				Err:  err,
			})
			return
		}
		c.bus.Emit(ctx, callback.Event{
			Type: callback.UnitEnd,
			Unit: c.inner.Name(),
		})
	}

	return stream.FromFunc(func(nextCtx context.Context) (O, bool, error) {
		val, ok, err := it.Next(nextCtx)
		if ok {
			c.bus.Emit(ctx, callback.Event{
				Type:       callback.Chunk,
				Unit:       c.inner.Name(),
				Chunk:      val,
				ChunkIndex: index,
			})
			index++
		}
		if err != nil || !ok {
			finish(err)
		}
		return val, ok, err
	}, func() error {
		finish(nil)
		return it.Close()
	}), nil
}
