package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/chainkit/chainkit/callback"
	"github.com/chainkit/chainkit/config"
	"github.com/chainkit/chainkit/graph"
	"github.com/chainkit/chainkit/logger"
	"github.com/chainkit/chainkit/observability"
	"github.com/chainkit/chainkit/version"
)

// App wires the runtime together: validated config, logger, optional
// OTLP export, callback bus and a ready-to-use engine. The type
// parameter C is the application config type; any struct embedding
// config.RuntimeConfig satisfies the constraint.
//
//	var cfg MyConfig
//	if err := config.Load("my-service", &cfg); err != nil { ... }
//	app, err := bootstrap.NewApp(&cfg)
type App[C config.Config] struct {
	Name    string
	Version string
	Cfg     C
	Logger  *logger.Logger
	Bus     *callback.Bus
	Metrics *observability.Metrics
	Engine  *graph.Engine

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	gracefulTimeout time.Duration
	onStart         []Hook
	onStop          []Hook
}

// NewApp builds an App from a typed config. The config is defaulted and
// validated, the global logger is initialized, and OTLP tracing/metrics
// are started when enabled.
func NewApp[C config.Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	rc := cfg.GetRuntimeConfig()

	app := &App[C]{
		Name:            rc.Name,
		Version:         rc.Version,
		Cfg:             cfg,
		gracefulTimeout: 15 * time.Second,
	}
	if app.Version == "" {
		app.Version = version.Short()
	}

	o := resolveOptions(opts)
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}

	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(rc.Logging)
		app.Logger = logger.GetGlobalLogger()
	}

	handlers := o.handlers
	if len(handlers) == 0 {
		handlers = []callback.Handler{callback.NewLogHandler(app.Logger)}
	}
	app.Bus = callback.NewBus(handlers)

	app.Engine = &graph.Engine{
		MaxConcurrency: rc.Engine.MaxConcurrency,
		Bus:            app.Bus,
		Log:            app.Logger,
	}

	app.Logger.Info("runtime configured", logger.Fields(
		"name", app.Name,
		"version", app.Version,
		"environment", rc.Environment,
	))
	return app, nil
}

// Start initializes OTLP export when enabled and runs OnStart hooks.
func (a *App[C]) Start(ctx context.Context) error {
	rc := a.Cfg.GetRuntimeConfig()

	if rc.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    a.Name,
			ServiceVersion: a.Version,
			Environment:    rc.Environment,
			Endpoint:       rc.Tracing.Endpoint,
			Insecure:       rc.Tracing.Insecure,
			SampleRate:     rc.Tracing.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		a.tracerProvider = tp
	}

	if rc.Metrics.Enabled {
		mp, err := observability.InitMeter(ctx, &observability.MeterConfig{
			ServiceName:    a.Name,
			ServiceVersion: a.Version,
			Environment:    rc.Environment,
			Endpoint:       rc.Metrics.Endpoint,
			Insecure:       rc.Metrics.Insecure,
			Interval:       rc.Metrics.Interval,
		})
		if err != nil {
			return fmt.Errorf("init meter: %w", err)
		}
		a.meterProvider = mp

		metrics, err := observability.NewMetrics(observability.Meter(a.Name))
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		a.Metrics = metrics
	}

	if err := runHooks(ctx, a.onStart); err != nil {
		return err
	}

	a.Logger.Info("runtime started", logger.Fields("name", a.Name))
	return nil
}

// Shutdown runs OnStop hooks and flushes telemetry exporters. It is
// bounded by the graceful timeout.
func (a *App[C]) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.gracefulTimeout)
	defer cancel()

	var firstErr error
	if err := runHooks(ctx, a.onStop); err != nil {
		firstErr = err
	}

	if a.meterProvider != nil {
		if err := a.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("meter shutdown: %w", err)
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tracer shutdown: %w", err)
		}
	}

	a.Logger.Info("runtime stopped", logger.Fields("name", a.Name))
	return firstErr
}

// Run starts the app, blocks until the context is canceled or a
// termination signal arrives, then shuts down gracefully.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		a.Logger.Info("signal received", logger.Fields("signal", sig.String()))
	}

	return a.Shutdown(context.Background())
}
