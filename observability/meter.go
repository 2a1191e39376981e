package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/chainkit/chainkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds OpenTelemetry metric instruments for runtime observability.
type Metrics struct {
	invocationTotal    metric.Int64Counter
	invocationDuration metric.Float64Histogram
	invocationActive   metric.Int64UpDownCounter
	retryTotal         metric.Int64Counter
	chunkTotal         metric.Int64Counter
	errorTotal         metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	invocationTotal, err := meter.Int64Counter("unit.invocation.total",
		metric.WithDescription("Total number of unit invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unit.invocation.total counter: %w", err)
	}

	invocationDuration, err := meter.Float64Histogram("unit.invocation.duration",
		metric.WithDescription("Duration of unit invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unit.invocation.duration histogram: %w", err)
	}

	invocationActive, err := meter.Int64UpDownCounter("unit.invocation.active",
		metric.WithDescription("Number of currently active unit invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unit.invocation.active gauge: %w", err)
	}

	retryTotal, err := meter.Int64Counter("unit.retry.total",
		metric.WithDescription("Total number of retry attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unit.retry.total counter: %w", err)
	}

	chunkTotal, err := meter.Int64Counter("unit.stream.chunks",
		metric.WithDescription("Total number of streamed chunks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unit.stream.chunks counter: %w", err)
	}

	errorTotal, err := meter.Int64Counter("unit.error.total",
		metric.WithDescription("Total unit errors by code and unit"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unit.error.total counter: %w", err)
	}

	return &Metrics{
		invocationTotal:    invocationTotal,
		invocationDuration: invocationDuration,
		invocationActive:   invocationActive,
		retryTotal:         retryTotal,
		chunkTotal:         chunkTotal,
		errorTotal:         errorTotal,
	}, nil
}

// RecordInvocationStart increments the active invocation count.
func (m *Metrics) RecordInvocationStart(ctx context.Context) {
	m.invocationActive.Add(ctx, 1)
}

// RecordInvocationEnd decrements active invocations and records the completed one.
func (m *Metrics) RecordInvocationEnd(ctx context.Context, unit, mode, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("unit", unit),
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.invocationActive.Add(ctx, -1)
	m.invocationTotal.Add(ctx, 1, attrs)
	m.invocationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("unit", unit),
		attribute.String("mode", mode),
	))
}

// RecordRetry records a retry attempt for a unit.
func (m *Metrics) RecordRetry(ctx context.Context, unit string, attempt int) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("unit", unit),
		attribute.Int("attempt", attempt),
	))
}

// RecordChunk records a streamed chunk emission.
func (m *Metrics) RecordChunk(ctx context.Context, unit string) {
	m.chunkTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("unit", unit),
	))
}

// RecordError records a unit error by code.
func (m *Metrics) RecordError(ctx context.Context, code, unit string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code),
		attribute.String("unit", unit),
	))
}
