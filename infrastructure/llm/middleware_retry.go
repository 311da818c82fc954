package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// Default retry configuration.
const (
	// DefaultMaxRetries is the default number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the default initial delay before the first retry.
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultMaxDelay is the default maximum delay between attempts.
	DefaultMaxDelay = 10 * time.Second
)

// retryLLM retries transient judge failures with exponential backoff.
type retryLLM struct {
	next        CoreLLM
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	isRetryable func(error) bool
}

// RetryMiddleware creates middleware that retries failed requests with
// exponential backoff and jitter. Only errors classified as transient by
// IsRetryableError are retried.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return RetryMiddlewareWithClassifier(maxRetries, baseDelay, maxDelay, IsRetryableError)
}

// RetryMiddlewareWithClassifier is RetryMiddleware with a custom retry predicate.
func RetryMiddlewareWithClassifier(
	maxRetries int,
	baseDelay, maxDelay time.Duration,
	isRetryable func(error) bool,
) Middleware {
	if isRetryable == nil {
		isRetryable = IsRetryableError
	}
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:        next,
			maxRetries:  maxRetries,
			baseDelay:   baseDelay,
			maxDelay:    maxDelay,
			isRetryable: isRetryable,
		}
	}
}

// DoRequest executes the request, retrying transient failures.
// It stops early on an open circuit, a non-retryable error or a finished
// context.
func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		reply, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return reply, nil
		}

		lastErr = err

		if ctx.Err() != nil || !r.isRetryable(err) {
			return domain.JudgeReply{}, err
		}

		if attempt == r.maxRetries {
			break
		}

		delay := r.calculateDelay(attempt)
		if wait := retryAfter(err); wait > delay {
			delay = min(wait, r.maxDelay)
		}

		select {
		case <-ctx.Done():
			return domain.JudgeReply{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return domain.JudgeReply{}, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retryLLM) calculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	multiplier := 1 << uint(attempt)
	delay := time.Duration(float64(r.baseDelay) * float64(multiplier))

	// Jitter of ±25%.
	// #nosec G404 - Using weak RNG is acceptable for jitter calculation
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > r.maxDelay {
		delay = r.maxDelay
	}

	return delay
}

// retryAfter returns the backoff requested by the provider, or zero.
func retryAfter(err error) time.Duration {
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.RetryAfter > 0 {
		return provErr.RetryAfter
	}
	var llmErr *ports.LLMError
	if errors.As(err, &llmErr) && llmErr.RetryAfter != nil {
		return *llmErr.RetryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP dates
// and malformed values yield zero.
func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// GetModel returns the model name from the wrapped implementation.
func (r *retryLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
