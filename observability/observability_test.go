package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartSpanNoop(t *testing.T) {
	// Without an initialized provider the global tracer is a noop; the
	// helpers must still be safe to call.
	ctx, span := StartSpan(context.Background(), SpanUnitInvoke)
	if span == nil {
		t.Fatal("expected span")
	}
	SetSpanAttribute(ctx, AttrUnitName, "summarize")
	SetSpanAttribute(ctx, AttrAttempt, 2)
	SetSpanError(ctx, errors.New("boom"))
	span.End()
}

func TestNewMetricsNoop(t *testing.T) {
	metrics, err := NewMetrics(Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	metrics.RecordInvocationStart(ctx)
	metrics.RecordInvocationEnd(ctx, "summarize", "invoke", "ok", 5*time.Millisecond)
	metrics.RecordRetry(ctx, "summarize", 1)
	metrics.RecordChunk(ctx, "summarize")
	metrics.RecordError(ctx, "TIMEOUT", "summarize")
}

func TestDefaultConfigs(t *testing.T) {
	tc := DefaultTracerConfig("chainkit")
	if tc.ServiceName != "chainkit" || tc.SampleRate != 1.0 {
		t.Errorf("unexpected tracer defaults: %+v", tc)
	}

	mc := DefaultMeterConfig("chainkit")
	if mc.Interval != 15*time.Second {
		t.Errorf("unexpected meter defaults: %+v", mc)
	}
}
