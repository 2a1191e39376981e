package unit

import (
	"context"
	"time"

	"github.com/chainkit/chainkit/logger"
	"github.com/chainkit/chainkit/stream"
)

// WithLogging returns a Middleware that logs each invocation: unit name,
// duration, and success/error status. Streamed invocations additionally
// log the chunk count on completion.
func WithLogging[I, O any](log *logger.Logger) Middleware[I, O] {
	return func(inner Unit[I, O]) Unit[I, O] {
		if log == nil {
			log = logger.GetGlobalLogger()
		}
		return &loggingUnit[I, O]{inner: inner, log: log}
	}
}

type loggingUnit[I, O any] struct {
	inner Unit[I, O]
	log   *logger.Logger
}

func (l *loggingUnit[I, O]) Name() string { return l.inner.Name() }

func (l *loggingUnit[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	start := time.Now()
	output, err := l.inner.Invoke(ctx, input)
	duration := time.Since(start)

	fields := logger.Fields(
		logger.FieldUnit, l.inner.Name(),
		logger.FieldDuration, duration.Milliseconds(),
	)

	if err != nil {
		l.log.WithContext(ctx).Error("unit invoke failed", logger.MergeWithError(fields, err))
	} else {
		l.log.WithContext(ctx).Debug("unit invoke ok", fields)
	}

	return output, err
}

func (l *loggingUnit[I, O]) Stream(ctx context.Context, input I) (stream.Iterator[O], error) {
	start := time.Now()
	it, err := Stream(ctx, l.inner, input)
	if err != nil {
		l.log.WithContext(ctx).Error("unit stream failed", logger.Fields(
			logger.FieldUnit, l.inner.Name(),
			logger.FieldError, err.Error(),
		))
		return nil, err
	}

	chunks := 0
	return stream.FromFunc(func(ctx context.Context) (O, bool, error) {
		val, ok, err := it.Next(ctx)
		if ok {
			chunks++
		}
		if err != nil || !ok {
			fields := logger.Fields(
				logger.FieldUnit, l.inner.Name(),
				logger.FieldChunkIndex, chunks,
				logger.FieldDuration, time.Since(start).Milliseconds(),
			)
			if err != nil {
				l.log.WithContext(ctx).Error("unit stream failed", logger.MergeWithError(fields, err))
			} else {
				l.log.WithContext(ctx).Debug("unit stream done", fields)
			}
		}
		return val, ok, err
	}, it.Close), nil
}
