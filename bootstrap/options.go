package bootstrap

import (
	"time"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/logger"
)

type options struct {
	logger          *logger.Logger
	handlers        []callback.Handler
	gracefulTimeout *time.Duration
}

// Option customizes App construction.
type Option func(*options)

// WithLogger supplies a pre-built logger instead of initializing the
// global one from config.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHandlers replaces the default log handler on the callback bus.
func WithHandlers(handlers ...callback.Handler) Option {
	return func(o *options) { o.handlers = handlers }
}

// WithGracefulTimeout bounds Shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *options) { o.gracefulTimeout = &d }
}

func resolveOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
