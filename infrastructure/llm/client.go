// Package llm provides judge-model clients for the OpenAI, Anthropic and
// Google providers, with built-in support for rate limiting, circuit
// breaking, retries, metrics and tracing.
//
// Providers translate their per-token log-probability payloads into
// domain.TokenPosition values so that the scoring engine can weight the
// score-bearing token. Providers that cannot return log-probabilities
// produce text-only replies.
//
// Architecture:
//   - Core client implementation with middleware chain composition
//   - Provider implementations abstracted through the CoreLLM interface
//   - Pluggable middleware for rate limiting, circuit breaking, retries,
//     metrics and tracing
//   - Registry for resolving "provider/model" judge references
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o-mini",
//	})
//	reply, err := client.Judge(ctx, prompt, map[string]any{
//	    "max_tokens":   1,
//	    "logprobs":     true,
//	    "top_logprobs": 5,
//	})
//
// Usage with middleware:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(20, 40),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.MetricsMiddleware(metricsCollector),
//	    },
//	})
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// CoreLLM defines the minimal interface that judge providers must implement.
// Middleware wraps any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a prompt to the provider and returns the judge reply.
	// The opts parameter carries request settings such as temperature,
	// max tokens and log-probability options. The reply carries token
	// usage and, when requested and supported, the token table.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	SetModel(model string)
}

// TokenEstimator provides pluggable token estimation strategies.
type TokenEstimator interface {
	// EstimateTokens returns an approximate token count for the given text.
	EstimateTokens(text string) int
}

// ClientConfig holds all configuration options for creating a judge client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	// For the Google provider, this field contains the path to a credentials
	// file or an API key.
	APIKey string

	// Model specifies which judge model to use for requests.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout sets the maximum duration for individual requests.
	// Zero value means no timeout.
	Timeout time.Duration

	// TokenEstimator provides custom token counting logic.
	// If nil, a simple character-based estimator is used.
	TokenEstimator TokenEstimator

	// Middleware is applied in the order specified, the first entry being
	// the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting functionality.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.JudgeClient on top of a middleware-wrapped provider.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.JudgeClient = (*Client)(nil)

// NewClient creates a judge client for the given provider type.
// It assembles the middleware chain and validates configuration.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return NewClientFromCore(core, config.TokenEstimator, config.Middleware...), nil
}

// NewClientFromCore wraps an existing CoreLLM with middleware.
// It is used by tests and by callers that construct providers directly.
func NewClientFromCore(core CoreLLM, estimator TokenEstimator, middleware ...Middleware) *Client {
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}

	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}

	return &Client{
		core:      core,
		estimator: estimator,
	}
}

// Judge sends a prompt to the judge model and returns its reply.
func (c *Client) Judge(ctx context.Context, prompt string, options map[string]any) (domain.JudgeReply, error) {
	reply, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		return domain.JudgeReply{}, err
	}
	if reply.Model == "" {
		reply.Model = c.core.GetModel()
	}
	return reply, nil
}

// EstimateTokens returns an approximate token count for the given text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the currently configured model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator provides basic character-based token estimation.
// It assumes roughly 4 characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens returns an approximate token count using character-based heuristics.
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories holds the registered providers, keyed by provider type.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider factory under the given type.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
