package unit

// Middleware transforms a Unit by wrapping it. The returned Unit
// typically delegates to the original while adding cross-cutting
// behavior (logging, tracing, callbacks, retry, etc.).
//
// Built-in middleware wrappers also satisfy Streamer, delegating to the
// wrapped unit's native stream when it has one, so instrumentation
// composes with incremental output.
type Middleware[I, O any] func(Unit[I, O]) Unit[I, O]

// Chain composes multiple middlewares into one. Middlewares are applied
// in order: the first middleware is outermost (executes first on the
// way in, last on the way out).
//
// Chain(a, b, c)(unit) is equivalent to a(b(c(unit))).
func Chain[I, O any](middlewares ...Middleware[I, O]) Middleware[I, O] {
	return func(inner Unit[I, O]) Unit[I, O] {
		for i := len(middlewares) - 1; i >= 0; i-- {
			inner = middlewares[i](inner)
		}
		return inner
	}
}
