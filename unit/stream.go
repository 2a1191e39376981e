package unit

import (
	"context"

	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/stream"
)

// Stream is the streaming invocation mode. Units that implement Streamer
// produce their native chunk sequence; for any other Unit the whole
// Invoke result is yielded as a single chunk. Either way the consumer
// gets a lazy sequence it can close early to cancel in-flight work.
func Stream[I, O any](ctx context.Context, u Unit[I, O], input I) (stream.Iterator[O], error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled(u.Name(), err)
	}

	if s, ok := u.(Streamer[I, O]); ok {
		return s.Stream(ctx, input)
	}

	return singleChunkStream(ctx, u, input), nil
}

// singleChunkStream defers the Invoke call until the first Next so the
// stream stays lazy even for non-streaming units. The deferred Invoke
// runs under the stream's creation context, so a deadline or wrapper
// scoped to the Stream call still governs it.
func singleChunkStream[I, O any](ctx context.Context, u Unit[I, O], input I) stream.Iterator[O] {
	done := false
	return stream.FromFunc(func(nextCtx context.Context) (O, bool, error) {
		var zero O
		if done {
			return zero, false, nil
		}
		done = true
		if err := nextCtx.Err(); err != nil {
			return zero, false, errors.Canceled(u.Name(), err)
		}
		if err := ctx.Err(); err != nil {
			return zero, false, errors.Canceled(u.Name(), err)
		}
		out, err := u.Invoke(ctx, input)
		if err != nil {
			return zero, false, err
		}
		return out, true, nil
	}, nil)
}

// Chan is the cooperative, push-based streaming mode: chunks are
// delivered on a channel, yielding at every chunk boundary. The returned
// cancel function stops chunk production promptly; the channel closes
// when the stream ends, fails, or is canceled.
func Chan[I, O any](ctx context.Context, u Unit[I, O], input I) (<-chan stream.Result[O], context.CancelFunc, error) {
	it, err := Stream(ctx, u, input)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := stream.Chan(ctx, it)
	return ch, cancel, nil
}
