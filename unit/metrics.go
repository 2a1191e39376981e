package unit

import (
	"context"
	"time"

	"github.com/chainkit/chainkit/errors"
	"github.com/chainkit/chainkit/observability"
	"github.com/chainkit/chainkit/stream"
)

// WithMetrics returns a Middleware that records invocation counts,
// durations and streamed chunk totals. A nil Metrics disables recording.
func WithMetrics[I, O any](m *observability.Metrics) Middleware[I, O] {
	return func(inner Unit[I, O]) Unit[I, O] {
		if m == nil {
			return inner
		}
		return &metricsUnit[I, O]{inner: inner, metrics: m}
	}
}

type metricsUnit[I, O any] struct {
	inner   Unit[I, O]
	metrics *observability.Metrics
}

func (m *metricsUnit[I, O]) Name() string { return m.inner.Name() }

func (m *metricsUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	m.metrics.RecordInvocationStart(ctx)
	start := time.Now()

	output, err := m.inner.Invoke(ctx, input)

	m.record(ctx, "invoke", start, err)
	return output, err
}

func (m *metricsUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	m.metrics.RecordInvocationStart(ctx)
	start := time.Now()

	it, err := Stream(ctx, m.inner, input)
	if err != nil {
		m.record(ctx, "stream", start, err)
		return nil, err
	}

	recorded := false
	record := func(err error) {
		if recorded {
			return
		}
		recorded = true
		m.record(ctx, "stream", start, err)
	}

	return stream.FromFunc(func(nextCtx context.Context) (O, bool, error) {
		val, ok, err := it.Next(nextCtx)
		if ok {
			m.metrics.RecordChunk(nextCtx, m.inner.Name())
		}
		if err != nil || !ok {
			record(err)
		}
		return val, ok, err
	}, func() error {
		record(nil)
		return it.Close()
	}), nil
}

func (m *metricsUnit[I, O]) record(ctx context.Context, mode string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		code := errors.ErrCodeInternal
		if ue, ok := errors.AsUnitError(err); ok {
			code = ue.Code
		}
		m.metrics.RecordError(ctx, string(code), m.inner.Name())
	}
	m.metrics.RecordInvocationEnd(ctx, m.inner.Name(), mode, status, time.Since(start))
}
