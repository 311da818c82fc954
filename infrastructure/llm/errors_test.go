package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/softscore/internal/ports"
)

func TestProviderError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want string
	}{
		{
			name: "full",
			err:  NewProviderError("openai", ErrorTypeRateLimit, 429, "slow down", errors.New("upstream")),
			want: "openai error (HTTP 429) [rate_limit]: slow down: upstream",
		},
		{
			name: "no status",
			err:  NewProviderError("google", ErrorTypeTimeout, 0, "context deadline exceeded", nil),
			want: "google error [timeout]: context deadline exceeded",
		},
		{
			name: "unknown type",
			err:  NewProviderError("anthropic", ErrorTypeUnknown, 0, "", nil),
			want: "anthropic error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestProviderError_IsMapsToPortErrors(t *testing.T) {
	tests := []struct {
		errType ErrorType
		target  error
	}{
		{ErrorTypeAuthentication, ports.ErrAuthenticationFailed},
		{ErrorTypeRateLimit, ports.ErrRateLimited},
		{ErrorTypeServerError, ports.ErrServiceUnavailable},
		{ErrorTypeTimeout, ports.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			err := fmt.Errorf("judge: %w", NewProviderError("openai", tt.errType, 0, "", nil))
			assert.ErrorIs(t, err, tt.target)
			assert.NotErrorIs(t, err, ports.ErrInvalidResponse)
		})
	}

	assert.NotErrorIs(t, NewProviderError("openai", ErrorTypeBadRequest, 400, "", nil), ports.ErrRateLimited)
}

func TestProviderError_Unwrap(t *testing.T) {
	err := NewProviderError("openai", ErrorTypeTimeout, 0, "", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorClassifier_ClassifyHTTPError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "openai"}

	tests := []struct {
		status int
		want   ErrorType
	}{
		{401, ErrorTypeAuthentication},
		{403, ErrorTypeAuthentication},
		{429, ErrorTypeRateLimit},
		{400, ErrorTypeBadRequest},
		{404, ErrorTypeNotFound},
		{408, ErrorTypeTimeout},
		{422, ErrorTypeBadRequest},
		{500, ErrorTypeServerError},
		{529, ErrorTypeServerError},
		{599, ErrorTypeServerError},
		{302, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			got := ec.ClassifyHTTPError(tt.status, "msg", nil)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, "openai", got.Provider)
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	retryAfter := time.Second

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "circuit open", err: ErrCircuitOpen, want: false},
		{name: "wrapped circuit open", err: fmt.Errorf("judge: %w", ErrCircuitOpen), want: false},
		{name: "caller cancelled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "provider rate limit", err: NewProviderError("openai", ErrorTypeRateLimit, 429, "", nil), want: true},
		{name: "provider server", err: NewProviderError("openai", ErrorTypeServerError, 503, "", nil), want: true},
		{name: "provider network", err: NewProviderError("openai", ErrorTypeNetwork, 0, "", nil), want: true},
		{name: "provider auth", err: NewProviderError("openai", ErrorTypeAuthentication, 401, "", nil), want: false},
		{name: "provider policy", err: NewProviderError("google", ErrorTypeContentPolicy, 400, "", nil), want: false},
		{
			name: "port error rate limited",
			err:  &ports.LLMError{Model: "gpt-4o", Operation: "judge", Err: ports.ErrRateLimited, RetryAfter: &retryAfter},
			want: true,
		},
		{
			name: "port error invalid response",
			err:  &ports.LLMError{Model: "gpt-4o", Operation: "judge", Err: ports.ErrInvalidResponse},
			want: false,
		},
		{name: "message overloaded", err: errors.New("upstream Overloaded"), want: true},
		{name: "message connection reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "message permanent", err: errors.New("invalid prompt"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}
