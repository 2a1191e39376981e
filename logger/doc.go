// Package logger provides structured logging for the chainkit runtime,
// built on zerolog. It supports console and JSON output, component-tagged
// sub-loggers, and run-id enrichment from context so every log line of a
// pipeline run can be correlated.
//
// Basic usage:
//
//	log := logger.NewDefault("chainkit")
//	log.Info("engine started", logger.Fields("max_concurrency", 8))
//
// Run correlation:
//
//	ctx = logger.ContextWithRunID(ctx, run.ID)
//	logger.WithContext(ctx).Debug("node completed")
package logger
