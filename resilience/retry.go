package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/chainkit/chainkit/errors"
)

// RetryConfig configures retry behavior for a wrapped unit.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// InitialBackoff is the initial delay between retries.
	InitialBackoff time.Duration
	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration
	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64
	// RetryIf determines if an error should be retried. Defaults to
	// errors.IsRetryable, which honors the UnitError retryable flag and
	// never retries cancellation.
	RetryIf func(error) bool
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        errors.IsRetryable,
	}
}

// ApplyDefaults fills zero-valued fields with defaults.
func (cfg *RetryConfig) ApplyDefaults() {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = errors.IsRetryable
	}
}

// Retry executes fn with retry logic. A non-retryable failure returns
// immediately without consuming retry budget; a retryable failure is
// re-attempted up to MaxAttempts total invocations with exponential
// backoff between attempts. The backoff sleep is timer-based and only
// delays this call, never unrelated work.
//
// The returned error is the last failure; Attempts collects the full
// history when the caller needs it (see RetryAll).
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	result, _, err := RetryAll(ctx, cfg, fn)
	return result, err
}

// RetryAll is Retry exposing the ordered history of every failed attempt.
// On success the history holds the failures that preceded it.
func RetryAll[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, []error, error) {
	var zero T
	cfg.ApplyDefaults()

	var history []error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		// Cancellation stops new attempts before they start.
		select {
		case <-ctx.Done():
			return zero, history, errors.Canceled("retry", ctx.Err())
		default:
		}

		result, err := fn()
		if err == nil {
			return result, history, nil
		}

		history = append(history, err)

		if !cfg.RetryIf(err) {
			return zero, history, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, cfg)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, history, errors.Canceled("retry", ctx.Err())
		case <-timer.C:
		}
	}

	return zero, history, history[len(history)-1]
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// calculateBackoff calculates the backoff duration for an attempt.
func calculateBackoff(attempt int, cfg RetryConfig) time.Duration {
	backoffFloat := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))

	if cfg.Jitter > 0 {
		jitterRange := backoffFloat * cfg.Jitter
		jitter := (rand.Float64()*2 - 1) * jitterRange
		backoffFloat += jitter
	}

	if backoffFloat > float64(cfg.MaxBackoff) {
		backoffFloat = float64(cfg.MaxBackoff)
	}

	if backoffFloat < 0 {
		backoffFloat = float64(cfg.InitialBackoff)
	}

	return time.Duration(backoffFloat)
}
