package unit

import (
	"context"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/resilience"
	"github.com/chainkit/chainkit/stream"
)

// Policy bundles the failure handling a unit runs under: a retry
// schedule for the primary unit and an ordered fallback chain tried
// when the primary is out of budget.
type Policy[I, O any] struct {
	// Retry governs re-attempts of the primary unit. Zero values are
	// filled from resilience defaults.
	Retry resilience.RetryConfig
	// Fallbacks are alternative units tried once each, in order, after
	// the primary fails. A fallback's own wrappers still apply.
	Fallbacks []Unit[I, O]
}

// WithRetry returns a Middleware that applies the policy to a unit.
//
// The primary is retried per the schedule; retry stops early on a
// non-retryable error. Cancellation aborts the whole chain without
// consulting fallbacks. When primary and every fallback have failed the
// returned error is a *errors.PolicyExhaustedError carrying the full
// ordered attempt history.
//
// Streaming is not re-attempted mid-flight: a policy-wrapped unit
// streams by running the policy to completion and yielding the final
// value as a single chunk, unless the primary's first Stream call
// itself succeeds.
func WithRetry[I, O any](policy Policy[I, O]) Middleware[I, O] {
	policy.Retry.ApplyDefaults()
	return func(inner Unit[I, O]) Unit[I, O] {
		return &retryUnit[I, O]{inner: inner, policy: policy}
	}
}

type retryUnit[I, O any] struct {
	inner  Unit[I, O]
	policy Policy[I, O]
}

func (r *retryUnit[I, O]) Name() string { return r.inner.Name() }

func (r *retryUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	// Each attempt is tagged in the context so events emitted inside the
	// retry loop carry the attempt number.
	attempt := 0
	output, attempts, err := resilience.RetryAll(ctx, r.policy.Retry, func() (O, error) {
		attempt++
		return r.inner.Invoke(callback.WithAttempt(ctx, attempt), input)
	})
	if err == nil {
		return output, nil
	}
	if errors.IsCanceled(err) {
		var zero O
		return zero, err
	}

	for _, fb := range r.policy.Fallbacks {
		if ctx.Err() != nil {
			var zero O
			return zero, errors.Canceled(r.inner.Name(), ctx.Err())
		}
		attempt++
		output, err = fb.Invoke(callback.WithAttempt(ctx, attempt), input)
		if err == nil {
			return output, nil
		}
		attempts = append(attempts, err)
		if errors.IsCanceled(err) {
			var zero O
			return zero, err
		}
	}

	var zero O
	return zero, errors.NewPolicyExhausted(r.inner.Name(), attempts)
}

func (r *retryUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	// A native stream from the primary carries no retry once chunks have
	// been handed out, so only the initial call is guarded.
	if s, ok := r.inner.(Streamer[I, O]); ok {
		it, err := s.Stream(callback.WithAttempt(ctx, 1), input)
		if err == nil {
			return it, nil
		}
		if errors.IsCanceled(err) {
			return nil, err
		}
	}

	output, err := r.Invoke(ctx, input)
	if err != nil {
		return nil, err
	}
	return stream.Single(output), nil
}
