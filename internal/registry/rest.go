package registry

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/livetemplate/sandbox/internal/config"
	"github.com/livetemplate/sandbox/internal/demo"
)

const maxResponseSize = 10 * 1024 * 1024 // 10MB

// RestLoader fetches a JSON demo from an HTTP endpoint
type RestLoader struct {
	name           string
	url            string
	headers        map[string]string
	client         *http.Client
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
}

// NewRestLoader creates a remote demo loader from its manifest entry
func NewRestLoader(name string, cfg config.DemoConfig) (*RestLoader, error) {
	if cfg.URL == "" {
		return nil, &ValidationError{Demo: name, Field: "url", Reason: "url is required"}
	}

	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		headers[key] = os.ExpandEnv(value)
	}

	retryConfig := RetryConfig{
		MaxRetries: cfg.GetRetryMaxRetries(),
		BaseDelay:  cfg.GetRetryBaseDelay(),
		MaxDelay:   cfg.GetRetryMaxDelay(),
		Multiplier: 2.0,
		EnableLog:  true,
	}

	return &RestLoader{
		name:           name,
		url:            os.ExpandEnv(cfg.URL),
		headers:        headers,
		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(name, DefaultCircuitBreakerConfig()),
		client: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
	}, nil
}

// Name returns the demo name
func (l *RestLoader) Name() string {
	return l.name
}

// Load fetches the demo through the circuit breaker with retries
func (l *RestLoader) Load(ctx context.Context) (*demo.Definition, error) {
	var def *demo.Definition
	err := l.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		def, err = WithRetry(ctx, l.name, l.retryConfig, l.fetch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (l *RestLoader) fetch(ctx context.Context) (*demo.Definition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, &LoadError{Demo: l.name, Operation: "create request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range l.headers {
		req.Header.Set(key, value)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, NewLoadError(l.name, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{
			Demo:       l.name,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, NewLoadError(l.name, "read response", err)
	}

	def, err := demo.ParseJSON(body)
	if err != nil {
		return nil, &LoadError{Demo: l.name, Operation: "decode", Err: err}
	}
	return def, nil
}

// Close releases idle connections
func (l *RestLoader) Close() error {
	l.client.CloseIdleConnections()
	return nil
}
