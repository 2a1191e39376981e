package unit

import (
	"context"

	"github.com/chainkit/chainkit/stream"
)

// Unit is the atomic invocable work item: one input, one output. A Unit
// must be reentrant: it may be invoked concurrently and must not hold
// per-invocation mutable state. Failures should be expressed through the
// errors package taxonomy so retry policies can classify them.
type Unit[I, O any] interface {
	// Name returns the unit's name for tracing.
	Name() string
	// Invoke executes the unit on one input, blocking until the output
	// or an error.
	Invoke(ctx context.Context, input I) (O, error)
}

// Streamer is a Unit that natively supports incremental output. Stream
// returns a finite, non-restartable lazy sequence of chunks; the
// consumer may close it early, which must cancel the underlying work.
type Streamer[I, O any] interface {
	Unit[I, O]
	Stream(ctx context.Context, input I) (stream.Iterator[O], error)
}

// Func adapts a plain function into a Unit. This is the explicit
// adaptation point for arbitrary callables: no reflection, no implicit
// duck typing.
func Func[I, O any](name string, fn func(ctx context.Context, input I) (O, error)) Unit[I, O] {
	return &funcUnit[I, O]{name: name, fn: fn}
}

type funcUnit[I, O any] struct {
	name string
	fn   func(ctx context.Context, input I) (O, error)
}

func (u *funcUnit[I, O]) Name() string { return u.name }

func (u *funcUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	return u.fn(ctx, input)
}

// StreamFunc adapts an invoke function plus a native chunk producer into
// a Streamer.
func StreamFunc[I, O any](
	name string,
	fn func(ctx context.Context, input I) (O, error),
	streamFn func(ctx context.Context, input I) (stream.Iterator[O], error),
) Streamer[I, O] {
	return &streamFuncUnit[I, O]{
		funcUnit: funcUnit[I, O]{name: name, fn: fn},
		streamFn: streamFn,
	}
}

type streamFuncUnit[I, O any] struct {
	funcUnit[I, O]
	streamFn func(ctx context.Context, input I) (stream.Iterator[O], error)
}

func (u *streamFuncUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	return u.streamFn(ctx, input)
}
