package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/softscore/internal/domain"
)

// Anthropic provider constants.
const (
	// AnthropicDefaultModel is the default Anthropic model.
	AnthropicDefaultModel = "claude-3-5-haiku-20241022"

	// jsonPrefill opens the assistant turn so that the reply continues a
	// JSON object.
	jsonPrefill = "{"
)

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements the CoreLLM interface for Anthropic's
// Messages API. The API does not expose log-probabilities, so replies are
// text only and logprob options are ignored.
type anthropicProvider struct {
	BaseProvider
	client          anthropic.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

// newAnthropicProvider creates a new Anthropic provider instance.
func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	// Retries are owned by the middleware chain.
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		opts = append(opts, option.WithBaseURL(validatedURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(ValidateTimeout(config.Timeout)))
	}

	return &anthropicProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          anthropic.NewClient(opts...),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// DoRequest sends a request to the Messages API and returns a text-only
// judge reply.
func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	options := ParseRequestOptions(opts, p.GetModel())
	params := p.buildAnthropicParams(prompt, options)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return domain.JudgeReply{}, p.handleError(err)
	}

	return p.processResponse(message, prompt, options)
}

// buildAnthropicParams creates the API request parameters.
// A JSON response format is requested by prefilling the assistant turn.
func (p *anthropicProvider) buildAnthropicParams(prompt string, options RequestOptions) anthropic.MessageNewParams {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	if options.ResponseFormat == ResponseFormatJSON {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(jsonPrefill)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		MaxTokens: int64(options.MaxTokens),
		Messages:  messages,
	}

	if options.Temperature != nil {
		// Anthropic accepts temperatures in [0, 1].
		params.Temperature = anthropic.Float(ClampFloat64(*options.Temperature, 0, 1))
	}

	if options.TopP != nil && *options.TopP > 0 {
		params.TopP = anthropic.Float(ClampFloat64(*options.TopP, MinTopP, MaxTopP))
	}

	if options.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: options.System}}
	}

	return params
}

// processResponse extracts content and token counts from the API response.
func (p *anthropicProvider) processResponse(
	message *anthropic.Message,
	originalPrompt string,
	options RequestOptions,
) (domain.JudgeReply, error) {
	var responseText strings.Builder
	if options.ResponseFormat == ResponseFormatJSON {
		responseText.WriteString(jsonPrefill)
	}
	for _, block := range message.Content {
		if content, ok := block.AsAny().(anthropic.TextBlock); ok {
			responseText.WriteString(content.Text)
		}
	}

	responseStr := responseText.String()
	if responseStr == "" || responseStr == jsonPrefill {
		return domain.JudgeReply{}, ErrEmptyResponse
	}

	return domain.JudgeReply{
		Text:      responseStr,
		Model:     string(message.Model),
		TokensIn:  p.tokenCounter.GetTokenCount(int(message.Usage.InputTokens), originalPrompt),
		TokensOut: p.tokenCounter.GetTokenCount(int(message.Usage.OutputTokens), responseStr),
	}, nil
}

// handleError classifies Anthropic SDK errors into ProviderErrors.
func (p *anthropicProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		provErr := p.errorClassifier.ClassifyHTTPError(anthropicErr.StatusCode, "request rejected", err)
		if anthropicErr.Response != nil {
			provErr.RetryAfter = parseRetryAfter(anthropicErr.Response.Header.Get("Retry-After"))
		}
		return provErr
	}

	return NewProviderError("anthropic", ErrorTypeUnknown, 0, "request failed", err)
}
