package unit

import (
	"context"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/observability"
	"github.com/chainkit/chainkit/stream"
	"go.opentelemetry.io/otel/trace"
)

// WithTracing returns a Middleware that creates an OpenTelemetry span
// around each invocation. The span name is "{serviceName}.{unitName}".
func WithTracing[I, O any](serviceName string) Middleware[I, O] {
	return func(inner Unit[I, O]) Unit[I, O] {
		return &tracingUnit[I, O]{inner: inner, serviceName: serviceName}
	}
}

type tracingUnit[I, O any] struct {
	inner       Unit[I, O]
	serviceName string
}

func (t *tracingUnit[I, O]) Name() string { return t.inner.Name() }

func (t *tracingUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	ctx, span := t.startSpan(ctx, "invoke")
	defer span.End()

	output, err := t.inner.Invoke(ctx, input)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}

	return output, err
}

func (t *tracingUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	ctx, span := t.startSpan(ctx, "stream")

	it, err := Stream(ctx, t.inner, input)
	if err != nil {
		observability.SetSpanError(ctx, err)
		span.End()
		return nil, err
	}

	// The span stays open for the life of the stream; it ends when the
	// consumer exhausts or closes the iterator.
	chunks := 0
	ended := false
	end := func(err error) {
		if ended {
			return
		}
		ended = true
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		observability.SetSpanAttribute(ctx, observability.AttrChunkCount, chunks)
		span.End()
	}

	return stream.FromFunc(func(nextCtx context.Context) (O, bool, error) {
		val, ok, err := it.Next(nextCtx)
		if ok {
			chunks++
		}
		if err != nil || !ok {
			end(err)
		}
		return val, ok, err
	}, func() error {
		end(nil)
		return it.Close()
	}), nil
}

func (t *tracingUnit[I, O]) startSpan(ctx context.Context, mode string) (context.Context, trace.Span) {
	spanName := t.serviceName + "." + t.inner.Name()
	ctx, span := observability.StartSpan(ctx, spanName)
	observability.SetSpanAttribute(ctx, observability.AttrServiceName, t.serviceName)
	observability.SetSpanAttribute(ctx, observability.AttrUnitName, t.inner.Name())
	observability.SetSpanAttribute(ctx, observability.AttrMode, mode)
	if r := callback.FromContext(ctx); r != nil {
		observability.SetSpanAttribute(ctx, observability.AttrRunID, r.ID)
	}
	return ctx, span
}
