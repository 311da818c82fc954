package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ahrav/softscore/internal/application"
	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// Budget defines resource consumption limits for judge calls.
// It specifies maximum allowed tokens and calls to prevent runaway costs.
type Budget struct {
	// MaxTokens limits the total number of tokens that can be consumed.
	// Zero means unlimited token usage.
	MaxTokens int64

	// MaxCalls limits the total number of judge calls that can be made.
	// Zero means unlimited calls.
	MaxCalls int64
}

// BudgetObserver provides observability hooks for budget operations.
// Implementations can add tracing, metrics, and logging without
// coupling observability concerns to core budget logic.
type BudgetObserver interface {
	// PreCheck is called before the judge call is made. The returned context
	// is passed to the wrapped client and to PostCheck.
	PreCheck(ctx context.Context, usage domain.Usage, budget Budget) context.Context

	// PostCheck is called after the judge call with usage and timing information.
	PostCheck(ctx context.Context, usage domain.Usage, budget Budget, elapsed time.Duration, err error)
}

// BudgetManager enforces token and call limits on a JudgeClient.
// Usage is shared by every caller of the manager, so one manager bounds a
// whole batch. It is safe for concurrent use.
type BudgetManager struct {
	budget   Budget
	next     ports.JudgeClient
	observer BudgetObserver

	tokens atomic.Int64
	calls  atomic.Int64
}

// NewBudgetManager creates a BudgetManager wrapping next.
// The observer is optional.
func NewBudgetManager(budget Budget, next ports.JudgeClient, observer BudgetObserver) *BudgetManager {
	if next == nil {
		panic("budget manager: next client is required")
	}
	return &BudgetManager{
		budget:   budget,
		next:     next,
		observer: observer,
	}
}

// Judge reserves a call against the budget, forwards the request and
// records the tokens the reply consumed. The call that crosses the token
// limit completes; later calls are rejected.
func (bm *BudgetManager) Judge(
	ctx context.Context,
	prompt string,
	options map[string]any,
) (domain.JudgeReply, error) {
	if err := bm.reserve(); err != nil {
		if bm.observer != nil {
			ctx = bm.observer.PreCheck(ctx, bm.Usage(), bm.budget)
			bm.observer.PostCheck(ctx, bm.Usage(), bm.budget, 0, err)
		}
		return domain.JudgeReply{}, err
	}

	if bm.observer != nil {
		ctx = bm.observer.PreCheck(ctx, bm.Usage(), bm.budget)
	}

	start := time.Now()
	reply, err := bm.next.Judge(ctx, prompt, options)
	elapsed := time.Since(start)

	if err == nil {
		bm.tokens.Add(int64(reply.TokensIn + reply.TokensOut))
	}

	if bm.observer != nil {
		bm.observer.PostCheck(ctx, bm.Usage(), bm.budget, elapsed, err)
	}

	return reply, err
}

// reserve claims one call. It fails when either limit is already reached.
func (bm *BudgetManager) reserve() error {
	model := bm.next.GetModel()

	if bm.budget.MaxTokens > 0 {
		if used := bm.tokens.Load(); used >= bm.budget.MaxTokens {
			return domain.NewBudgetExceededError("tokens", int(bm.budget.MaxTokens), int(used), model)
		}
	}

	calls := bm.calls.Add(1)
	if bm.budget.MaxCalls > 0 && calls > bm.budget.MaxCalls {
		bm.calls.Add(-1)
		return domain.NewBudgetExceededError("calls", int(bm.budget.MaxCalls), int(calls-1), model)
	}
	return nil
}

// Usage returns the consumption recorded so far.
func (bm *BudgetManager) Usage() domain.Usage {
	return domain.Usage{
		Tokens: bm.tokens.Load(),
		Calls:  bm.calls.Load(),
	}
}

// EstimateTokens delegates to the wrapped client.
func (bm *BudgetManager) EstimateTokens(text string) (int, error) {
	return bm.next.EstimateTokens(text)
}

// GetModel delegates to the wrapped client.
func (bm *BudgetManager) GetModel() string { return bm.next.GetModel() }

// Validate checks that the budget limits are not negative.
func (bm *BudgetManager) Validate() error {
	if bm.budget.MaxTokens < 0 {
		return fmt.Errorf("budget manager: max_tokens cannot be negative, got %d", bm.budget.MaxTokens)
	}

	if bm.budget.MaxCalls < 0 {
		return fmt.Errorf("budget manager: max_calls cannot be negative, got %d", bm.budget.MaxCalls)
	}

	return nil
}

// BudgetFromConfig converts an application.BudgetConfig to a middleware.Budget.
func BudgetFromConfig(config application.BudgetConfig) Budget {
	return Budget{
		MaxTokens: config.MaxTokens,
		MaxCalls:  config.MaxCalls,
	}
}

var _ ports.JudgeClient = (*BudgetManager)(nil)
