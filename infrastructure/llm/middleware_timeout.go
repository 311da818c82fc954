package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// timeoutLLM bounds each judge request with its own deadline.
type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware limits every request to timeout. A request cut off by
// this deadline fails with a *ports.LLMError wrapping ports.ErrTimeout, which
// the retry middleware treats as transient. Deadlines and cancellation of the
// caller's context pass through unchanged. A zero timeout disables the limit.
//
// Placed inside RetryMiddleware it bounds each attempt; placed outside it
// bounds the whole retry sequence.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

// DoRequest runs the request under the middleware deadline.
func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	if t.timeout <= 0 {
		return t.next.DoRequest(ctx, prompt, opts)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	reply, err := t.next.DoRequest(attemptCtx, prompt, opts)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return domain.JudgeReply{}, ports.NewLLMError(
			t.next.GetModel(), "judge",
			fmt.Errorf("%w after %s: %w", ports.ErrTimeout, t.timeout, err),
		)
	}
	return reply, err
}

// GetModel returns the model name from the wrapped implementation.
func (t *timeoutLLM) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *timeoutLLM) SetModel(m string) { t.next.SetModel(m) }
