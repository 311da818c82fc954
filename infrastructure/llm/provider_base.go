package llm

import (
	"sync"
)

// Request defaults shared by all providers.
const (
	// DefaultMaxTokens bounds a structured judge reply.
	DefaultMaxTokens = 800
	// DefaultTopLogProbs is the number of alternatives requested per position.
	DefaultTopLogProbs = 5
)

// BaseProvider provides common, thread-safe functionality for all judge
// providers, primarily for managing the model name.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the name of the model currently configured for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the standardized set of judge request parameters.
type RequestOptions struct {
	// MaxTokens specifies the maximum number of tokens to generate.
	// A plain-mode judge asks for a single token.
	MaxTokens int
	// Model is the identifier of the judge model to use for the request.
	Model string
	// Temperature controls the randomness of the output.
	// A nil value indicates that the provider's default should be used.
	Temperature *float64
	// TopP is the nucleus sampling threshold.
	// A nil value indicates that the provider's default should be used.
	TopP *float64
	// System provides instructions that frame the judge's behavior.
	System string
	// LogProbs asks the provider to return per-token log-probabilities.
	LogProbs bool
	// TopLogProbs is the number of alternatives returned per position when
	// LogProbs is set.
	TopLogProbs int
	// ResponseFormat is ResponseFormatText or ResponseFormatJSON.
	ResponseFormat string
	// Extra holds any provider-specific options that are not part of the standardized set.
	Extra map[string]any
}

// ParseRequestOptions extracts and validates judge request parameters from a map.
// Missing or invalid entries fall back to defaults.
// Unrecognized options are collected into the Extra field.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens:      ExtractOptionalInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:          ExtractOptionalString(opts, "model", defaultModel, IsNonEmptyString),
		System:         ExtractOptionalString(opts, "system_prompt", "", nil),
		LogProbs:       ExtractOptionalBool(opts, "logprobs", false),
		ResponseFormat: ExtractOptionalString(opts, "response_format", ResponseFormatText, IsValidResponseFormat),
		Extra:          make(map[string]any),
	}

	if options.LogProbs {
		options.TopLogProbs = ExtractOptionalInt(opts, "top_logprobs", DefaultTopLogProbs, IsValidTopLogProbs)
	}

	if temp := ExtractOptionalFloat64(opts, "temperature", -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}

	if topP := ExtractOptionalFloat64(opts, "top_p", -1, IsValidTopP); topP != -1 {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system_prompt", "temperature", "top_p",
			"logprobs", "top_logprobs", "response_format":
		default:
			options.Extra[k] = v
		}
	}

	return options
}

// TokenCounter estimates token counts from text when a provider does not
// report usage.
type TokenCounter struct {
	// CharactersPerToken is the average number of characters per token.
	CharactersPerToken float64
}

// NewTokenCounter creates a TokenCounter with a ratio suited to English text.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		CharactersPerToken: 4.0,
	}
}

// EstimateTokens calculates an estimated token count for a given string of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount returns the actual token count if it is positive and
// otherwise estimates it from text.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}
