package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/sandbox/internal/demo"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{
		MaxRetries: n,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	got, err := WithRetry(context.Background(), "test", fastRetry(3), func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, &HTTPError{StatusCode: 503}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client error", &HTTPError{StatusCode: 400}},
		{"shape", &demo.ShapeError{Reason: "bad"}},
		{"validation", &ValidationError{Reason: "bad"}},
		{"not found", &NotFoundError{Name: "x"}},
		{"circuit open", &CircuitOpenError{Demo: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			_, err := WithRetry(context.Background(), "test", fastRetry(3), func(ctx context.Context) (int, error) {
				attempts++
				return 0, tt.err
			})
			assert.Equal(t, 1, attempts)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestWithRetryExhausted(t *testing.T) {
	attempts := 0
	_, err := WithRetry(context.Background(), "flaky", fastRetry(2), func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("connection reset by peer")
	})
	assert.Equal(t, 3, attempts)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "flaky", loadErr.Demo)
	assert.False(t, loadErr.IsRetryable(), "exhausted errors are final")
}

func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.BaseDelay = time.Second
	cfg.MaxDelay = time.Second

	attempts := 0
	_, err := WithRetry(ctx, "test", cfg, func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, &HTTPError{StatusCode: 500}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestCalculateDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	for attempt, base := range []time.Duration{100, 200, 400, 800, 1000} {
		base *= time.Millisecond
		d := calculateDelay(attempt, cfg)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8), "attempt %d", attempt)
		assert.Less(t, d, time.Duration(float64(base)*1.2), "attempt %d", attempt)
	}
}
