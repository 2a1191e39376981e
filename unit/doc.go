// Package unit defines the core execution contract of the runtime: a
// Unit transforms a typed input into a typed output, and every unit is
// invocable in four modes regardless of how it is implemented.
//
//	Invoke       one input, one output
//	Batch        many inputs, concurrently, order preserved
//	Stream       one input, incremental output chunks (pull)
//	Chan         one input, incremental output chunks (push)
//
// Units that produce output incrementally additionally implement
// Streamer; for all others the free function Stream degrades to a
// single chunk carrying the Invoke result.
//
// Cross-cutting behavior is layered on with Middleware: WithLogging,
// WithTracing, WithMetrics, WithCallbacks, WithRetry, WithTimeout and
// WithCircuitBreaker each wrap a unit without changing its contract,
// and compose with Chain. All built-in wrappers preserve streaming.
package unit
