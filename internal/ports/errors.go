package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/softscore/internal/domain"
)

// Errors reported by judge providers, sinks and configuration sources.
var (
	// ErrTokenLimitExceeded means the prompt or reply exceeded the judge
	// model's context window.
	ErrTokenLimitExceeded = errors.New("token limit exceeded")

	// ErrRateLimited means the provider or a local limiter refused the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable means the provider could not serve the call.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout means a judge call ran past its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse means the provider reply could not be decoded.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed means the provider rejected the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConfigNotFound means a configuration source does not exist.
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrSinkClosed means a result was published after the sink was closed.
	ErrSinkClosed = errors.New("sink closed")
)

// LLMError describes a failed judge call.
type LLMError struct {
	// Model is the judge model the call was addressed to.
	Model string

	// Operation names the failed step, e.g. "judge" or "rate_limit".
	Operation string

	// Err is the cause.
	Err error

	// TokensUsed is the number of tokens consumed before the failure, if
	// the provider reported it.
	TokensUsed int

	// RetryAfter is the provider's suggested backoff, if any.
	RetryAfter *time.Duration
}

// Error implements the error interface for LLMError.
func (e *LLMError) Error() string {
	msg := fmt.Sprintf("LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
	if e.TokensUsed > 0 {
		msg += fmt.Sprintf(", tokens_used=%d", e.TokensUsed)
	}
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the cause.
func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether the cause is transient: rate limiting, an
// unavailable service or a timeout.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError creates an LLMError.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// SinkError represents a failure to deliver results to a ResultSink.
type SinkError struct {
	// Sink names the sink implementation.
	Sink string

	// Results is the number of results in the failed delivery.
	Results int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for SinkError.
func (e *SinkError) Error() string {
	return fmt.Sprintf("sink error: sink=%s, results=%d, err=%v", e.Sink, e.Results, e.Err)
}

// Unwrap returns the underlying error.
func (e *SinkError) Unwrap() error { return e.Err }

// NewSinkError creates a new SinkError with the given details.
func NewSinkError(sink string, results int, err error) *SinkError {
	return &SinkError{Sink: sink, Results: results, Err: err}
}

// ConfigError reports a configuration value or source that could not be
// used.
type ConfigError struct {
	// ConfigKey locates the problem, e.g. "yaml" or "judge.model".
	ConfigKey string

	// Err is the cause.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the cause.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}

// Status labels attached to evaluation metrics.
const (
	StatusSuccess           = "success"
	StatusEmptyDistribution = "empty_distribution"
	StatusUnknownRubric     = "unknown_rubric"
	StatusBudgetExceeded    = "budget_exceeded"
	StatusUnparsableScore   = "unparsable_score"
	StatusRateLimited       = "rate_limited"
	StatusTimeout           = "timeout"
	StatusCancelled         = "cancelled"
	StatusSinkError         = "sink_error"
	StatusError             = "error"
)

// ErrorStatus maps the outcome of one evaluation to a status label. The
// first matching class wins, so a sink failure caused by cancellation
// reports "cancelled".
func ErrorStatus(err error) string {
	var sinkErr *SinkError

	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled):
		return StatusCancelled
	case errors.Is(err, domain.ErrEmptyDistribution):
		return StatusEmptyDistribution
	case errors.Is(err, domain.ErrUnparsableScore):
		return StatusUnparsableScore
	case errors.Is(err, domain.ErrUnknownRubric):
		return StatusUnknownRubric
	case errors.Is(err, domain.ErrBudgetExceeded):
		return StatusBudgetExceeded
	case errors.Is(err, ErrRateLimited):
		return StatusRateLimited
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.As(err, &sinkErr):
		return StatusSinkError
	default:
		return StatusError
	}
}
