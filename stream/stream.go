package stream

import "context"

// Iterator provides pull-based sequential access to a finite stream of
// chunks. It is non-restartable: once exhausted or closed it cannot be
// consumed again. Close must be called when done to release resources;
// closing early cancels the producer.
type Iterator[T any] interface {
	// Next returns the next chunk. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Result carries a chunk or error through a channel.
type Result[T any] struct {
	Val T
	Err error
}

// --- Constructors ---

// FromSlice creates an iterator over a slice of chunks.
func FromSlice[T any](items []T) Iterator[T] {
	return &sliceIter[T]{items: items}
}

// Single creates an iterator that yields one chunk. This is the default
// stream shape for units that only support whole-result invocation.
func Single[T any](v T) Iterator[T] {
	return &sliceIter[T]{items: []T{v}}
}

// Error creates an iterator whose first Next call fails with err.
func Error[T any](err error) Iterator[T] {
	return &errIter[T]{err: err}
}

// FromFunc creates an iterator from next/close functions.
func FromFunc[T any](next func(ctx context.Context) (T, bool, error), close func() error) Iterator[T] {
	return &funcIter[T]{next: next, close: close}
}

// FromChan creates an iterator reading from a channel of results. The
// cancel function is invoked on Close to stop the producer. A closed
// channel ends the stream.
func FromChan[T any](ch <-chan Result[T], cancel func() error) Iterator[T] {
	return &chanIter[T]{ch: ch, closer: cancel}
}

// --- Terminals ---

// Collect pulls all chunks and returns them as a slice. On error the
// chunks consumed so far are returned alongside the error.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, val)
	}
}

// Drain pulls all chunks and sends each to sink, stopping on the first
// sink or iterator error.
func Drain[T any](ctx context.Context, it Iterator[T], sink func(context.Context, T) error) error {
	defer it.Close()
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := sink(ctx, val); err != nil {
			return err
		}
	}
}

// Last consumes the stream and returns its final chunk. Returns ok=false
// for an empty stream.
func Last[T any](ctx context.Context, it Iterator[T]) (T, bool, error) {
	defer it.Close()
	var last T
	seen := false
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return last, seen, err
		}
		if !ok {
			return last, seen, nil
		}
		last = val
		seen = true
	}
}

// Reduce folds all chunks into an accumulator.
func Reduce[T, A any](ctx context.Context, it Iterator[T], acc A, fn func(A, T) A) (A, error) {
	defer it.Close()
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return acc, err
		}
		if !ok {
			return acc, nil
		}
		acc = fn(acc, val)
	}
}

// --- Internal iterators ---

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error {
	it.index = len(it.items)
	return nil
}

type errIter[T any] struct {
	err  error
	done bool
}

func (it *errIter[T]) Next(_ context.Context) (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	it.done = true
	return zero, false, it.err
}

func (it *errIter[T]) Close() error { return nil }

type funcIter[T any] struct {
	next   func(ctx context.Context) (T, bool, error)
	close  func() error
	closed bool
}

func (it *funcIter[T]) Next(ctx context.Context) (T, bool, error) {
	if it.closed {
		var zero T
		return zero, false, nil
	}
	return it.next(ctx)
}

func (it *funcIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.close != nil {
		return it.close()
	}
	return nil
}

// chanIter reads chunks from a channel. Used by concurrent operators and
// by units that produce chunks from a goroutine.
type chanIter[T any] struct {
	ch     <-chan Result[T]
	closer func() error
	closed bool
}

func (it *chanIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.closed {
		return zero, false, nil
	}
	select {
	case r, open := <-it.ch:
		if !open {
			return zero, false, nil
		}
		if r.Err != nil {
			return zero, false, r.Err
		}
		return r.Val, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (it *chanIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.closer != nil {
		return it.closer()
	}
	return nil
}
