package config

import (
	"fmt"
	"time"

	"github.com/chainkit/chainkit/logger"
	"github.com/chainkit/chainkit/resilience"
)

// RuntimeConfig is the root configuration of the execution runtime.
// Applications embed it in their own config structs:
//
//	type AppConfig struct {
//	    config.RuntimeConfig `yaml:",inline" mapstructure:",squash"`
//	    Providers providers.Config `yaml:"providers" mapstructure:"providers"`
//	}
type RuntimeConfig struct {
	Name        string        `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string        `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development staging production"`
	Version     string        `yaml:"version" mapstructure:"version"`
	Debug       bool          `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config `yaml:"logging" mapstructure:"logging"`
	Engine      EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Tracing     TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics     MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig enables OTLP metric export.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// EngineConfig bounds pipeline execution.
type EngineConfig struct {
	// MaxConcurrency caps parallel node execution within a level.
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"omitempty,min=1"`
	// MaxDepth bounds pipeline nesting (0 = unlimited).
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth" validate:"min=0"`
	// DefaultTimeout bounds a single top-level run when set.
	DefaultTimeout time.Duration `yaml:"default_timeout" mapstructure:"default_timeout"`
}

// RetryConfig is the declarative form of the retry schedule.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"omitempty,min=1"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor" mapstructure:"backoff_factor" validate:"omitempty,gte=1"`
	Jitter         float64       `yaml:"jitter" mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// ToResilience converts the declarative schedule into a runtime one.
func (c RetryConfig) ToResilience() resilience.RetryConfig {
	cfg := resilience.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		BackoffFactor:  c.BackoffFactor,
		Jitter:         c.Jitter,
	}
	cfg.ApplyDefaults()
	return cfg
}

// GetRuntimeConfig returns the embedded RuntimeConfig. When embedded in
// a larger config struct the method is promoted, so the embedding
// struct satisfies the Config interface automatically.
func (c *RuntimeConfig) GetRuntimeConfig() *RuntimeConfig {
	return c
}

// Config is what the loader expects from any application config struct.
type Config interface {
	GetRuntimeConfig() *RuntimeConfig
	ApplyDefaults()
	Validate() error
}

// ApplyDefaults fills zero-valued fields. Embedding structs override
// this and call c.RuntimeConfig.ApplyDefaults() first.
func (c *RuntimeConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
	if c.Engine.MaxConcurrency <= 0 {
		c.Engine.MaxConcurrency = 8
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4318"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "localhost:4318"
	}
}

// Validate checks the configuration against its struct tags plus the
// nested logging config.
func (c *RuntimeConfig) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}
