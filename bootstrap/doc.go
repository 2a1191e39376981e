// Package bootstrap assembles a ready-to-use runtime from validated
// configuration: logger, callback bus, execution engine and optional
// OTLP trace/metric export, with lifecycle hooks and graceful shutdown
// for long-running services.
package bootstrap
