package registry

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/livetemplate/sandbox/internal/demo"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts (default: 3)
	BaseDelay  time.Duration // Initial delay between retries (default: 100ms)
	MaxDelay   time.Duration // Maximum delay between retries (default: 5s)
	Multiplier float64       // Delay multiplier for exponential backoff (default: 2.0)
	EnableLog  bool          // Whether to log retry attempts
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		EnableLog:  true,
	}
}

// WithRetry calls fn until it succeeds, returns a non-retryable error, or
// runs out of attempts.
func WithRetry[T any](ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 && cfg.EnableLog {
				log.Printf("[loader/%s] Succeeded on attempt %d", name, attempt+1)
			}
			return result, nil
		}

		lastErr = err

		if !shouldRetry(err) {
			if cfg.EnableLog {
				log.Printf("[loader/%s] Non-retryable error: %v", name, err)
			}
			return zero, err
		}

		if attempt < cfg.MaxRetries {
			delay := calculateDelay(attempt, cfg)
			if cfg.EnableLog {
				log.Printf("[loader/%s] Attempt %d failed (%v), retrying in %v...", name, attempt+1, err, delay)
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	if cfg.EnableLog {
		log.Printf("[loader/%s] All %d attempts failed", name, cfg.MaxRetries+1)
	}

	var loadErr *LoadError
	if errors.As(lastErr, &loadErr) {
		loadErr.Retryable = false
		return zero, lastErr
	}

	return zero, &LoadError{
		Demo:      name,
		Operation: "fetch",
		Err:       lastErr,
		Retryable: false,
	}
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Retryable
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return false
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	var shapeErr *demo.ShapeError
	if errors.As(err, &shapeErr) {
		return false
	}

	if errors.Is(err, ErrDemoNotFound) {
		return false
	}

	return isRetryableError(err)
}

// calculateDelay is exponential backoff capped at MaxDelay, with ±20% jitter
func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))

	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	jitter := 0.8 + rand.Float64()*0.4
	delay *= jitter

	return time.Duration(delay)
}
