package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/livetemplate/sandbox/internal/demo"
)

// ErrDemoNotFound matches every NotFoundError via errors.Is.
var ErrDemoNotFound = errors.New("demo not found")

// NotFoundError reports an identifier with no registry entry
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return "demo not found: empty identifier"
	}
	return fmt.Sprintf("demo not found: %q", e.Name)
}

// Is makes errors.Is(err, ErrDemoNotFound) true
func (e *NotFoundError) Is(target error) bool {
	return target == ErrDemoNotFound
}

// LoadError wraps a failure to produce a demo definition
type LoadError struct {
	Demo      string // Demo name
	Operation string // Operation that failed (e.g., "fetch", "decode", "query")
	Err       error
	Retryable bool
}

func (e *LoadError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("demo %q %s failed: %v", e.Demo, e.Operation, e.Err)
	}
	return fmt.Sprintf("demo %q: %v", e.Demo, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *LoadError) IsRetryable() bool {
	return e.Retryable
}

// NewLoadError creates a LoadError with retryable detection
func NewLoadError(name, operation string, err error) *LoadError {
	return &LoadError{
		Demo:      name,
		Operation: operation,
		Err:       err,
		Retryable: isRetryableError(err),
	}
}

// ValidationError represents invalid loader configuration
type ValidationError struct {
	Demo   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("demo %q: invalid %s: %s", e.Demo, e.Field, e.Reason)
	}
	return fmt.Sprintf("demo %q: validation failed: %s", e.Demo, e.Reason)
}

// HTTPError represents an HTTP error response from a remote demo
type HTTPError struct {
	Demo       string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("demo %q: HTTP %d %s: %s", e.Demo, e.StatusCode, e.Status, e.Body)
	}
	return fmt.Sprintf("demo %q: HTTP %d %s", e.Demo, e.StatusCode, e.Status)
}

// IsRetryable returns true for 5xx errors and 429 (rate limit)
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// CircuitOpenError indicates the circuit breaker is open
type CircuitOpenError struct {
	Demo string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("demo %q: circuit breaker open, service temporarily unavailable", e.Demo)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"temporary failure",
		"try again",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// UserFriendlyMessage returns the text shown in the sandbox log for a failed load
func UserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrDemoNotFound) {
		return "Demo not found."
	}

	var shapeErr *demo.ShapeError
	if errors.As(err, &shapeErr) {
		if shapeErr.Key != "" {
			return fmt.Sprintf("Malformed demo (%s): %s", shapeErr.Key, shapeErr.Reason)
		}
		return "Malformed demo: " + shapeErr.Reason
	}

	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return "Demo server temporarily unavailable. Please try again later."
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 401:
			return "Authentication required."
		case httpErr.StatusCode == 403:
			return "Access denied."
		case httpErr.StatusCode == 404:
			return "Demo not found on the remote server."
		case httpErr.StatusCode == 429:
			return "Too many requests. Please slow down."
		case httpErr.StatusCode >= 500:
			return "Server error. Please try again later."
		default:
			return fmt.Sprintf("Request failed (HTTP %d).", httpErr.StatusCode)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "Loading the demo timed out."
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fmt.Sprintf("Invalid demo configuration: %s", validationErr.Reason)
	}

	return "Failed to load demo. Please try again."
}
