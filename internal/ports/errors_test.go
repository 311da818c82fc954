package ports

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/softscore/internal/domain"
)

func TestLLMError_Message(t *testing.T) {
	retryAfter := 30 * time.Second

	tests := []struct {
		name string
		err  *LLMError
		want string
	}{
		{
			name: "plain",
			err:  NewLLMError("gpt-4o-mini", "judge", ErrTokenLimitExceeded),
			want: "LLM error: model=gpt-4o-mini, operation=judge, err=token limit exceeded",
		},
		{
			name: "with tokens used",
			err:  &LLMError{Model: "claude-3-5-haiku-20241022", Operation: "judge", Err: ErrTokenLimitExceeded, TokensUsed: 8192},
			want: "LLM error: model=claude-3-5-haiku-20241022, operation=judge, err=token limit exceeded, tokens_used=8192",
		},
		{
			name: "with retry after",
			err:  &LLMError{Model: "gemini-2.0-flash", Operation: "judge", Err: ErrRateLimited, RetryAfter: &retryAfter},
			want: "LLM error: model=gemini-2.0-flash, operation=judge, err=rate limited, retry_after=30s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, tt.err.Err)
		})
	}
}

func TestLLMError_IsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrRateLimited, true},
		{ErrServiceUnavailable, true},
		{ErrTimeout, true},
		{fmt.Errorf("%w after 30s: %w", ErrTimeout, context.DeadlineExceeded), true},
		{ErrTokenLimitExceeded, false},
		{ErrInvalidResponse, false},
		{ErrAuthenticationFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, NewLLMError("gpt-4o", "judge", tt.err).IsRetryable())
		})
	}
}

func TestSinkError(t *testing.T) {
	err := NewSinkError("jsonl", 3, ErrSinkClosed)

	assert.Equal(t, "sink error: sink=jsonl, results=3, err=sink closed", err.Error())
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("judge.model", ErrConfigNotFound)

	assert.Equal(t, "config error: key=judge.model, err=configuration not found", err.Error())
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", want: StatusSuccess},
		{name: "empty distribution", err: domain.NewDistributionError("Coherence", domain.TokenPosition{}), want: StatusEmptyDistribution},
		{name: "unparsable score", err: domain.ResultScore{EvalName: "Fluency", Score: domain.SentinelScore}.ParseErr(), want: StatusUnparsableScore},
		{name: "unknown rubric", err: &domain.RubricError{Name: "Coherance"}, want: StatusUnknownRubric},
		{name: "budget", err: domain.NewBudgetExceededError("calls", 10, 10, "gpt-4o"), want: StatusBudgetExceeded},
		{name: "rate limited", err: NewLLMError("gpt-4o", "judge", ErrRateLimited), want: StatusRateLimited},
		{name: "judge timeout", err: NewLLMError("gpt-4o", "judge", ErrTimeout), want: StatusTimeout},
		{name: "deadline", err: fmt.Errorf("judge call: %w", context.DeadlineExceeded), want: StatusTimeout},
		{name: "cancelled", err: context.Canceled, want: StatusCancelled},
		{name: "cancelled sink delivery", err: NewSinkError("memory", 1, context.Canceled), want: StatusCancelled},
		{name: "closed sink", err: NewSinkError("memory", 1, ErrSinkClosed), want: StatusSinkError},
		{name: "other", err: errors.New("boom"), want: StatusError},
		{name: "auth", err: NewLLMError("gpt-4o", "judge", ErrAuthenticationFailed), want: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorStatus(tt.err))
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	base := errors.New("base error")

	for _, err := range []error{
		NewLLMError("model", "judge", base),
		NewSinkError("sink", 1, base),
		NewConfigError("key", base),
	} {
		require.ErrorIs(t, err, base)
		assert.Equal(t, base, errors.Unwrap(err))
	}
}
