// Package observability provides OpenTelemetry tracing and metrics
// integration for the chainkit runtime.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("chainkit"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanUnitInvoke)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("chainkit"))
//	metrics.RecordInvocationEnd(ctx, "summarize", "invoke", "ok", duration)
package observability
