// Package callback provides the lifecycle event bus and the per-run
// invocation context for the chainkit runtime.
//
// Every unit invocation emits start, end/error, and per-chunk events
// through an explicitly passed Bus; there is no global registry, so
// concurrent runs stay isolated. A failing or panicking handler is
// reported through the bus's error side channel and never disturbs the
// invocation it observes.
//
// A Run carries the run id, tracing tags, and nesting limits down the
// pipeline via context:
//
//	run := callback.NewRun(callback.WithTag("tenant", "acme"))
//	ctx = callback.WithRun(ctx, run)
package callback
