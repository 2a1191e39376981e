package unit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chainkit/chainkit/errors"
)

// DefaultBatchConcurrency caps concurrent invocations per batch when no
// explicit cap is configured.
const DefaultBatchConcurrency = 8

// BatchOption configures batch invocation.
type BatchOption func(*batchOptions)

type batchOptions struct {
	concurrency int
}

// WithConcurrency caps how many inputs are invoked concurrently.
func WithConcurrency(n int) BatchOption {
	return func(o *batchOptions) {
		o.concurrency = n
	}
}

func newBatchOptions(opts []BatchOption) batchOptions {
	o := batchOptions{concurrency: DefaultBatchConcurrency}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	return o
}

// Batch is the fail-fast batch invocation mode: every input is invoked
// concurrently up to the configured cap, outputs are returned in input
// order regardless of completion order, and the first failure cancels
// the remaining invocations and fails the whole batch with stage
// position detail. No new invocations start after the context is
// canceled.
func Batch[I, O any](ctx context.Context, u Unit[I, O], inputs []I, opts ...BatchOption) ([]O, error) {
	o := newBatchOptions(opts)

	outputs := make([]O, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, input := range inputs {
		// Cancellation stops scheduling further items.
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Canceled(u.Name(), err)
			}
			out, err := u.Invoke(gctx, input)
			if err != nil {
				return fmt.Errorf("batch index %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled(u.Name(), err)
	}
	return outputs, nil
}

// BatchResults is the error-capturing batch mode: like Batch, but each
// item's failure is recorded in its slot instead of aborting the whole
// batch. The result slice always has one entry per input, in input
// order.
func BatchResults[I, O any](ctx context.Context, u Unit[I, O], inputs []I, opts ...BatchOption) []Result[O] {
	o := newBatchOptions(opts)

	results := make([]Result[O], len(inputs))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input I) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// A slot freed after cancellation must not start new work.
			if err := ctx.Err(); err != nil {
				results[i] = Result[O]{Err: errors.Canceled(u.Name(), err)}
				return
			}

			out, err := u.Invoke(ctx, input)
			if err != nil {
				results[i] = Result[O]{Err: err}
				return
			}
			results[i] = Result[O]{Val: out}
		}(i, input)
	}

	wg.Wait()
	return results
}

// Result holds one batch item's output or error.
type Result[O any] struct {
	Val O
	Err error
}
