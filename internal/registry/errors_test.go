package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/livetemplate/sandbox/internal/demo"
)

func TestNotFoundErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &NotFoundError{Name: "x"})
	assert.True(t, errors.Is(err, ErrDemoNotFound))
	assert.False(t, errors.Is(&LoadError{Demo: "x", Err: errors.New("y")}, ErrDemoNotFound))
}

func TestLoadErrorUnwrap(t *testing.T) {
	inner := errors.New("disk on fire")
	err := &LoadError{Demo: "hello", Operation: "read", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, `demo "hello" read failed: disk on fire`, err.Error())
}

func TestHTTPErrorIsRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			err := &HTTPError{StatusCode: tt.code}
			assert.Equal(t, tt.want, err.IsRetryable())
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("dial tcp: connection refused")))
	assert.True(t, isRetryableError(&HTTPError{StatusCode: 502}))
	assert.False(t, isRetryableError(errors.New("permission denied")))
	assert.False(t, isRetryableError(context.Canceled))
}

func TestUserFriendlyMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", &NotFoundError{Name: "x"}, "Demo not found."},
		{"shape with key", &LoadError{Demo: "x", Err: &demo.ShapeError{Key: "js", Reason: "missing code"}}, "Malformed demo (js): missing code"},
		{"shape", &demo.ShapeError{Reason: "demo must be a JSON object"}, "Malformed demo: demo must be a JSON object"},
		{"circuit", &CircuitOpenError{Demo: "x"}, "Demo server temporarily unavailable. Please try again later."},
		{"401", &HTTPError{StatusCode: 401}, "Authentication required."},
		{"404", &HTTPError{StatusCode: 404}, "Demo not found on the remote server."},
		{"418", &HTTPError{StatusCode: 418}, "Request failed (HTTP 418)."},
		{"500", &HTTPError{StatusCode: 500}, "Server error. Please try again later."},
		{"timeout", fmt.Errorf("resolve: %w", context.DeadlineExceeded), "Loading the demo timed out."},
		{"validation", &ValidationError{Demo: "x", Reason: "url is required"}, "Invalid demo configuration: url is required"},
		{"generic", errors.New("???"), "Failed to load demo. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserFriendlyMessage(tt.err))
		})
	}
}
