package stream

import "context"

// Map transforms each chunk with fn, lazily.
func Map[I, O any](it Iterator[I], fn func(I) (O, error)) Iterator[O] {
	return &mapIter[I, O]{source: it, fn: fn}
}

type mapIter[I, O any] struct {
	source Iterator[I]
	fn     func(I) (O, error)
}

func (it *mapIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	val, ok, err := it.source.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := it.fn(val)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

func (it *mapIter[I, O]) Close() error { return it.source.Close() }
