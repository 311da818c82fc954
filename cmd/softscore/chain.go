package main

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/softscore/infrastructure/llm"
	"github.com/ahrav/softscore/infrastructure/middleware"
	"github.com/ahrav/softscore/internal/application"
	"github.com/ahrav/softscore/internal/log"
	"github.com/ahrav/softscore/internal/ports"
)

const tracerName = "softscore"

// Retry backoff used when the configuration leaves it unset.
const (
	defaultRetryWait    = 500 * time.Millisecond
	defaultRetryMaxWait = 10 * time.Second
)

// judgeMiddleware returns the resilience chain for judge calls, outermost
// first: tracing, metrics, circuit breaker, retry, rate limit.
func judgeMiddleware(cfg application.JudgeConfig, metrics ports.MetricsCollector) []llm.Middleware {
	chain := []llm.Middleware{
		llm.TracingMiddleware(tracerName),
		llm.MetricsMiddleware(metrics),
	}

	if cb := cfg.CircuitBreaker; cb.MaxFailures > 0 {
		chain = append(chain, llm.CircuitBreakerMiddleware(cb.MaxFailures, time.Duration(cb.CooldownSeconds)*time.Second))
	}

	if r := cfg.Retry; r.MaxAttempts > 0 {
		wait, maxWait := defaultRetryWait, defaultRetryMaxWait
		if r.InitialWait > 0 {
			wait = time.Duration(r.InitialWait) * time.Millisecond
		}
		if r.MaxWait > 0 {
			maxWait = time.Duration(r.MaxWait) * time.Millisecond
		}
		chain = append(chain, llm.RetryMiddleware(r.MaxAttempts, wait, maxWait))
	}

	if rl := cfg.RateLimit; rl.RequestsPerSecond > 0 {
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(rl.RequestsPerSecond), max(rl.Burst, 1)))
	}

	return chain
}

// newJudge builds the provider client for cfg.Model behind the middleware
// chain and the run budget.
func newJudge(cfg application.JudgeConfig, metrics ports.MetricsCollector) (*middleware.BudgetManager, error) {
	ref, err := llm.ParseJudgeRef(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("invalid judge model: %w", err)
	}
	spec := ref.String()

	registry, err := llm.NewRegistry(llm.RegistryConfig{
		Providers:         llm.DefaultProviders,
		DefaultProvider:   ref.Provider,
		DefaultTimeout:    cfg.Timeout(),
		DefaultMiddleware: judgeMiddleware(cfg, metrics),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider registry: %w", err)
	}

	client, err := registry.GetClient(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge %s: %w", spec, err)
	}
	if !registry.SupportsLogProbs(spec) {
		log.Warnf("judge %s returns no log-probabilities; only discrete scores will be available", spec)
	}

	return newBudgetedJudge(client, cfg, metrics)
}

// newBudgetedJudge wraps client in a BudgetManager enforcing cfg.Budget.
func newBudgetedJudge(client ports.JudgeClient, cfg application.JudgeConfig, metrics ports.MetricsCollector) (*middleware.BudgetManager, error) {
	observer := middleware.NewOTelBudgetObserver(metrics, client.GetModel())
	judge := middleware.NewBudgetManager(middleware.BudgetFromConfig(cfg.Budget), client, observer)
	if err := judge.Validate(); err != nil {
		return nil, fmt.Errorf("invalid judge budget: %w", err)
	}
	return judge, nil
}
