// Package application loads the engine configuration, renders rubric
// prompts and orchestrates judge calls into scored results.
package application

import (
	"time"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/scoring"
)

// Defaults applied to fields left empty in the configuration file.
const (
	DefaultTimeoutSeconds = 30
	DefaultTopLogProbs    = 5
	DefaultMaxConcurrency = 5
)

// EngineConfig is the complete configuration of the scoring engine and
// serves as the primary configuration entry point for the system.
type EngineConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`
	// Judge configures the judge model and the resilience chain around it.
	Judge JudgeConfig `yaml:"judge" validate:"required"`
	// Scoring configures interpretation of judge replies and aggregation.
	Scoring ScoringConfig `yaml:"scoring"`
	// Rubrics lists the scoring criteria available to evaluations.
	Rubrics []domain.Rubric `yaml:"rubrics" validate:"required,min=1,dive"`
}

// JudgeConfig selects the judge model and how calls to it are made.
type JudgeConfig struct {
	// Model is the judge model in the format "provider/model" or
	// "provider/model@version".
	Model string `yaml:"model" validate:"required,modelformat"`
	// SystemPrompt is sent with every judge call when set.
	SystemPrompt string `yaml:"system_prompt,omitempty" validate:"max=10000"`
	// TimeoutSeconds bounds a single judge call.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,min=1,max=600"`
	// TopLogProbs is the number of alternatives requested per position.
	TopLogProbs int `yaml:"top_logprobs" validate:"omitempty,min=1,max=20"`
	// RateLimit throttles outgoing judge calls.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// Retry configures recovery from transient provider failures.
	Retry RetryConfig `yaml:"retry"`
	// CircuitBreaker stops calling a failing provider for a cooldown period.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	// Budget bounds the tokens and calls one run may consume.
	Budget BudgetConfig `yaml:"budget"`
}

// Timeout returns the judge call timeout as a duration.
func (c JudgeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitConfig throttles judge calls with a token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained call rate. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"omitempty,min=0,max=1000"`
	// Burst is the bucket size.
	Burst int `yaml:"burst" validate:"omitempty,min=1,max=10000"`
}

// RetryConfig specifies the error recovery strategy for judge calls
// when transient failures occur.
type RetryConfig struct {
	// MaxAttempts defines the number of retries after the initial attempt,
	// where 0 disables retries entirely.
	MaxAttempts int `yaml:"max_attempts" validate:"min=0,max=10"`
	// InitialWait specifies the base delay in milliseconds before the
	// first retry attempt, serving as the foundation for backoff calculations.
	InitialWait int `yaml:"initial_wait_ms" validate:"omitempty,min=0,max=60000"`
	// MaxWait caps the maximum delay in milliseconds between retry attempts.
	MaxWait int `yaml:"max_wait_ms" validate:"omitempty,min=0,max=300000"`
}

// CircuitBreakerConfig opens the circuit after consecutive failures.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit. Zero disables the breaker.
	MaxFailures int `yaml:"max_failures" validate:"omitempty,min=1,max=1000"`
	// CooldownSeconds is how long the circuit stays open.
	CooldownSeconds int `yaml:"cooldown_seconds" validate:"omitempty,min=1,max=3600"`
}

// BudgetConfig establishes resource consumption limits for judge calls
// to prevent runaway costs and ensure predictable resource usage.
type BudgetConfig struct {
	// MaxTokens limits the total number of tokens that can be consumed.
	MaxTokens int64 `yaml:"max_tokens" validate:"omitempty,min=1,max=100000000"`
	// MaxCalls limits the number of judge calls that can be made.
	MaxCalls int64 `yaml:"max_calls" validate:"omitempty,min=0,max=1000000"`
}

// ScoringConfig controls interpretation of judge replies.
type ScoringConfig struct {
	// ScoreMarker is the text preceding the score in structured replies.
	ScoreMarker string `yaml:"score_marker" validate:"omitempty,max=100"`
	// ExcludeSentinels drops unparsable results from aggregate means.
	ExcludeSentinels bool `yaml:"exclude_sentinels"`
	// MaxConcurrency bounds concurrent judge calls in a batch.
	MaxConcurrency int `yaml:"max_concurrency" validate:"omitempty,min=1,max=256"`
}

// applyDefaults fills fields the file left empty. Rubrics named after a
// built-in rubric inherit its mode and score scale.
func (c *EngineConfig) applyDefaults() {
	if c.Judge.TimeoutSeconds == 0 {
		c.Judge.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Judge.TopLogProbs == 0 {
		c.Judge.TopLogProbs = DefaultTopLogProbs
	}
	if c.Judge.RateLimit.RequestsPerSecond > 0 && c.Judge.RateLimit.Burst == 0 {
		c.Judge.RateLimit.Burst = 1
	}
	if c.Scoring.ScoreMarker == "" {
		c.Scoring.ScoreMarker = scoring.DefaultScoreMarker
	}
	if c.Scoring.MaxConcurrency == 0 {
		c.Scoring.MaxConcurrency = DefaultMaxConcurrency
	}

	for i := range c.Rubrics {
		r := &c.Rubrics[i]
		builtin := domain.EvalType(r.Name)
		if r.Mode == "" {
			r.Mode = builtin.Mode()
		}
		if r.ScoreScale == "" {
			r.ScoreScale = builtin.DefaultScale()
		}
	}
}
