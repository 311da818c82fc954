package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// rateLimitedLLM paces judge requests with a token bucket.
type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware paces requests to limit per second with the given
// burst. Every client wrapped by the same Middleware value shares one
// bucket, so a registry-wide rate limit caps all judges together.
//
// A request whose context ends before a token frees up fails with a
// *ports.LLMError wrapping ports.ErrRateLimited. A context that is already
// done yields its own error.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{next: next, limiter: limiter}
	}
}

// DoRequest waits for a token before forwarding the request.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.JudgeReply{}, fmt.Errorf("rate limit: %w", ctxErr)
		}
		return domain.JudgeReply{}, ports.NewLLMError(
			r.next.GetModel(), "judge",
			fmt.Errorf("%w: %w", ports.ErrRateLimited, err),
		)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *rateLimitedLLM) SetModel(m string) { r.next.SetModel(m) }
