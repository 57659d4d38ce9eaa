// Package retry provides exponential backoff retry helpers for upstream calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/peer-digital/medla-projects/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Maximum number of attempts
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the delay between attempts
	Multiplier   float64       // Multiplier for exponential backoff
	Jitter       float64       // Extra random delay, as a fraction of the computed delay (0 disables)
	DelayFirst   bool          // Apply the backoff delay before the first attempt too
}

// DefaultConfig returns the retry configuration used for idempotent portal GETs.
// Pattern: 1s, 2s, 4s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// Func is a function that can be retried
type Func func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes a function with exponential backoff retry logic
func WithExponentialBackoff(ctx context.Context, config *Config, fn Func) *Result {
	logger := logging.FromContext(ctx)
	startTime := time.Now()

	result := &Result{}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if config.DelayFirst || attempt > 1 {
			delay := Delay(config, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				logger.WithError(ctx.Err()).Warn("Retry cancelled during backoff")
				result.LastError = ctx.Err()
				result.TotalDuration = time.Since(startTime)
				return result
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)

			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration,
				}).Info("Operation succeeded after retry")
			}

			return result
		}

		lastErr = err
		result.LastError = err

		if attempt >= config.MaxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts":      attempt,
				"totalDuration": time.Since(startTime),
				"error":         err.Error(),
			}).Error("Operation failed after max retry attempts")
			break
		}

		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("Retry cancelled due to context cancellation")
			result.LastError = ctx.Err()
			break
		}

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"error":       err.Error(),
		}).Warn("Operation failed, retrying with exponential backoff")
	}

	result.TotalDuration = time.Since(startTime)
	result.LastError = lastErr
	return result
}

// Delay calculates the backoff delay preceding the given attempt, including
// jitter when configured.
func Delay(config *Config, attempt int) time.Duration {
	// The first wait uses the initial delay unchanged and later waits grow by
	// the multiplier. Without DelayFirst the first wait precedes attempt 2.
	exponent := float64(attempt - 2)
	if config.DelayFirst {
		exponent = float64(attempt - 1)
	}
	if exponent < 0 {
		exponent = 0
	}

	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, exponent)

	if config.Jitter > 0 {
		delay += rand.Float64() * delay * config.Jitter
	}

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}
