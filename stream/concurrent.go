package stream

import (
	"context"
	"sync"
)

// Buffer decouples a producer from its consumer with a buffered channel.
// The producer goroutine pulls from the source ahead of consumption and
// stops promptly when the returned iterator is closed or the context is
// canceled.
func Buffer[T any](ctx context.Context, source Iterator[T], size int) Iterator[T] {
	if size <= 0 {
		size = 1
	}
	bufCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Result[T], size)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(ch)
		for {
			val, ok, err := source.Next(bufCtx)
			if err != nil {
				select {
				case ch <- Result[T]{Err: err}:
				case <-bufCtx.Done():
				}
				return
			}
			if !ok {
				return
			}
			select {
			case ch <- Result[T]{Val: val}:
			case <-bufCtx.Done():
				return
			}
		}
	}()

	return FromChan(ch, func() error {
		// The producer must be out of source.Next before the source closes.
		cancel()
		<-done
		return source.Close()
	})
}

// Merge combines multiple iterators concurrently. Chunks are yielded as
// they become available from any source; cross-source order is arbitrary.
func Merge[T any](ctx context.Context, sources ...Iterator[T]) Iterator[T] {
	mergeCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Result[T], len(sources))
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		go func(it Iterator[T]) {
			defer wg.Done()
			for {
				val, ok, err := it.Next(mergeCtx)
				if err != nil {
					select {
					case ch <- Result[T]{Err: err}:
					case <-mergeCtx.Done():
					}
					return
				}
				if !ok {
					return
				}
				select {
				case ch <- Result[T]{Val: val}:
				case <-mergeCtx.Done():
					return
				}
			}
		}(source)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	return FromChan(ch, func() error {
		// The producers must be out of their sources' Next before the
		// sources close.
		cancel()
		wg.Wait()
		var firstErr error
		for _, it := range sources {
			if err := it.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}

// Chan bridges an iterator to a channel of results for push-based,
// cooperative consumption. The returned cancel function stops the bridge
// goroutine and closes the iterator; the channel is closed when the
// stream ends, fails, or is canceled.
func Chan[T any](ctx context.Context, it Iterator[T]) (<-chan Result[T], context.CancelFunc) {
	bridgeCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Result[T])

	go func() {
		defer close(ch)
		defer it.Close()
		for {
			val, ok, err := it.Next(bridgeCtx)
			if err != nil {
				select {
				case ch <- Result[T]{Err: err}:
				case <-bridgeCtx.Done():
				}
				return
			}
			if !ok {
				return
			}
			select {
			case ch <- Result[T]{Val: val}:
			case <-bridgeCtx.Done():
				return
			}
		}
	}()

	return ch, cancel
}
