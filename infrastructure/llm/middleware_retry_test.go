package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

func TestRetryMiddleware_Outcomes(t *testing.T) {
	overloaded := NewProviderError("anthropic", ErrorTypeServerError, 529, "overloaded", nil)

	tests := []struct {
		name       string
		maxRetries int
		failUntil  int
		err        error
		wantCalls  int
		wantErr    string
	}{
		{name: "first attempt succeeds", maxRetries: 3, wantCalls: 1},
		{name: "transient failures then success", maxRetries: 3, failUntil: 2, wantCalls: 3},
		{name: "server error then success", maxRetries: 2, failUntil: 1, err: overloaded, wantCalls: 2},
		{name: "local rate limit then success", maxRetries: 2, failUntil: 1,
			err: ports.NewLLMError("gpt-4o", "judge", ports.ErrRateLimited), wantCalls: 2},
		{name: "exhausted", maxRetries: 2, err: &testError{message: "judge unavailable"}, wantCalls: 3,
			wantErr: "request failed after 3 attempts: temporary failure: judge unavailable"},
		{name: "zero retries", maxRetries: 0, err: overloaded, wantCalls: 1,
			wantErr: "request failed after 1 attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			mock.Error = tt.err
			mock.FailUntilAttempt = tt.failUntil
			judge := RetryMiddleware(tt.maxRetries, time.Millisecond, 5*time.Millisecond)(mock)

			reply, err := judge.DoRequest(context.Background(), "Rate the coherence", nil)

			assert.Equal(t, tt.wantCalls, mock.GetCallCount())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "4", reply.Text)
			assert.Len(t, reply.Tokens, 1, "token table survives retries")
		})
	}
}

func TestRetryMiddleware_StopsOnPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "authentication", err: NewProviderError("openai", ErrorTypeAuthentication, 401, "bad key", nil)},
		{name: "bad request", err: NewProviderError("google", ErrorTypeBadRequest, 400, "bad prompt", nil)},
		{name: "circuit open", err: ErrCircuitOpen},
		{name: "budget exceeded", err: ports.NewLLMError("gpt-4o", "judge", domain.ErrBudgetExceeded)},
		{name: "plain error", err: errors.New("malformed reply")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			mock.Error = tt.err
			judge := RetryMiddleware(3, time.Millisecond, 5*time.Millisecond)(mock)

			_, err := judge.DoRequest(context.Background(), "p", nil)

			assert.Same(t, tt.err, err, "permanent errors are returned unwrapped")
			assert.Equal(t, 1, mock.GetCallCount())
		})
	}
}

func TestRetryMiddlewareWithClassifier(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("flaky")
	mock.FailUntilAttempt = 2
	retryAll := func(error) bool { return true }
	judge := RetryMiddlewareWithClassifier(3, time.Millisecond, 5*time.Millisecond, retryAll)(mock)

	_, err := judge.DoRequest(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Equal(t, 3, mock.GetCallCount())

	mock = NewMockCoreLLM()
	mock.Error = &testError{message: "busy"}
	judge = RetryMiddlewareWithClassifier(3, time.Millisecond, 5*time.Millisecond, nil)(mock)
	_, err = judge.DoRequest(context.Background(), "p", nil)
	assert.ErrorContains(t, err, "after 4 attempts", "nil classifier falls back to IsRetryableError")
}

func TestRetryMiddleware_ContextEndsRetries(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = &testError{message: "slow"}
	mock.ResponseDelay = 30 * time.Millisecond
	judge := RetryMiddleware(10, 10*time.Millisecond, time.Second)(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err := judge.DoRequest(ctx, "p", nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, mock.GetCallCount(), 5)
}

func TestRetryMiddleware_BackoffGrows(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.FailUntilAttempt = 3
	judge := RetryMiddleware(5, 10*time.Millisecond, time.Second)(mock)

	_, err := judge.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	gaps := mock.Gaps()
	require.Len(t, gaps, 3)
	// Base 10ms with ±25% jitter: 7.5-12.5, 15-25, 30-50.
	assert.GreaterOrEqual(t, gaps[0], 7*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[2], 30*time.Millisecond)
	assert.Greater(t, gaps[2], gaps[0])
}

func TestRetryMiddleware_MaxDelayCapsBackoff(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.FailUntilAttempt = 8
	judge := RetryMiddleware(10, 5*time.Millisecond, 15*time.Millisecond)(mock)

	start := time.Now()
	_, err := judge.DoRequest(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestRetryMiddleware_HonorsRetryAfter(t *testing.T) {
	wait := 60 * time.Millisecond

	tests := []struct {
		name string
		err  error
	}{
		{name: "provider error", err: &ProviderError{
			Provider: "anthropic", Type: ErrorTypeRateLimit, StatusCode: http.StatusTooManyRequests,
			Message: "slow down", RetryAfter: wait,
		}},
		{name: "judge error", err: &ports.LLMError{Model: "gpt-4o", Operation: "judge", Err: ports.ErrRateLimited, RetryAfter: &wait}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			mock.Error = tt.err
			mock.FailUntilAttempt = 1
			judge := RetryMiddleware(2, time.Millisecond, time.Second)(mock)

			_, err := judge.DoRequest(context.Background(), "p", nil)

			require.NoError(t, err)
			gaps := mock.Gaps()
			require.Len(t, gaps, 1)
			assert.GreaterOrEqual(t, gaps[0], wait)
		})
	}
}

func TestRetryMiddleware_RetryAfterCappedByMaxDelay(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = &ProviderError{Type: ErrorTypeRateLimit, StatusCode: 429, RetryAfter: time.Minute}
	mock.FailUntilAttempt = 1
	judge := RetryMiddleware(1, time.Millisecond, 20*time.Millisecond)(mock)

	start := time.Now()
	_, err := judge.DoRequest(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{" 12 ", 12 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.header))
		})
	}
}

func TestRetryMiddleware_KeepsRequestAcrossAttempts(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.FailUntilAttempt = 1
	judge := RetryMiddleware(3, time.Millisecond, 5*time.Millisecond)(mock)

	ctx := context.WithValue(context.Background(), testContextKey, "eval-7")
	opts := map[string]any{"temperature": 0.0, "logprobs": true}
	_, err := judge.DoRequest(ctx, "Rate the fluency", opts)

	require.NoError(t, err)
	assert.Equal(t, "Rate the fluency", mock.LastPrompt)
	assert.Equal(t, opts, mock.LastOpts)
	require.Len(t, mock.Contexts, 2)
	for _, c := range mock.Contexts {
		assert.Equal(t, "eval-7", c.Value(testContextKey))
	}

	judge.SetModel("gpt-4o")
	assert.Equal(t, "gpt-4o", mock.GetModel())
	assert.Equal(t, "gpt-4o", judge.GetModel())
}

func TestRetryMiddleware_CalculateDelayBounds(t *testing.T) {
	r := &retryLLM{baseDelay: 10 * time.Millisecond, maxDelay: time.Second}

	for _, attempt := range []int{-1, 0, 5, 50} {
		delay := r.calculateDelay(attempt)
		assert.Positive(t, delay, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, r.maxDelay, "attempt %d", attempt)
	}
}
