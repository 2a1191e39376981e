package unit

import (
	"context"

	"github.com/chainkit/chainkit/resilience"
)

// WithCircuitBreaker returns a Middleware that routes invocations
// through the given breaker. While the breaker is open, Invoke fails
// fast with a retryable error so an outer retry or fallback chain can
// take over.
func WithCircuitBreaker[I, O any](cb *resilience.CircuitBreaker) Middleware[I, O] {
	return func(inner Unit[I, O]) Unit[I, O] {
		if cb == nil {
			return inner
		}
		return &circuitUnit[I, O]{inner: inner, cb: cb}
	}
}

type circuitUnit[I, O any] struct {
	inner Unit[I, O]
	cb    *resilience.CircuitBreaker
}

func (c *circuitUnit[I, O]) Name() string { return c.inner.Name() }

func (c *circuitUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	var output O
	err := c.cb.Execute(func() error {
		var callErr error
		output, callErr = c.inner.Invoke(ctx, input)
		return callErr
	})
	if err != nil {
		var zero O
		return zero, err
	}
	return output, nil
}
