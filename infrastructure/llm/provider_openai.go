package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/softscore/internal/domain"
)

const (
	// OpenAIDefaultModel is used when no model is configured.
	OpenAIDefaultModel = "gpt-4o-mini"
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements the CoreLLM interface for OpenAI's chat
// completions API. It is the judge provider that returns per-token
// log-probabilities.
type openAIProvider struct {
	BaseProvider
	client          *openai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

// newOpenAIProvider creates a new OpenAI provider instance.
func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)

	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = validatedURL
	}

	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{
			Timeout: ValidateTimeout(config.Timeout),
		}
	}

	return &openAIProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          openai.NewClientWithConfig(clientConfig),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "openai"},
	}, nil
}

// DoRequest sends a request to the OpenAI API and returns the judge reply.
// When log-probabilities were requested the reply carries one TokenPosition
// per emitted token.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	req := p.buildChatCompletionRequest(prompt, options)
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.JudgeReply{}, p.handleError(err)
	}

	if len(resp.Choices) == 0 {
		return domain.JudgeReply{}, ErrNoResponseChoice
	}

	choice := resp.Choices[0]
	content := choice.Message.Content

	model := resp.Model
	if model == "" {
		model = options.Model
	}

	return domain.JudgeReply{
		Text:      content,
		Tokens:    convertOpenAILogProbs(choice.LogProbs),
		Model:     model,
		TokensIn:  p.tokenCounter.GetTokenCount(resp.Usage.PromptTokens, prompt),
		TokensOut: p.tokenCounter.GetTokenCount(resp.Usage.CompletionTokens, content),
	}, nil
}

// convertOpenAILogProbs maps the provider's log-probability content onto
// token positions. It returns nil when the response carries none.
func convertOpenAILogProbs(lp *openai.LogProbs) []domain.TokenPosition {
	if lp == nil || len(lp.Content) == 0 {
		return nil
	}

	positions := make([]domain.TokenPosition, 0, len(lp.Content))
	for _, tok := range lp.Content {
		pos := domain.TokenPosition{
			Chosen: domain.TokenCandidate{Text: tok.Token, LogProbability: tok.LogProb},
		}
		if len(tok.TopLogProbs) > 0 {
			pos.Alternatives = make([]domain.TokenCandidate, 0, len(tok.TopLogProbs))
			for _, alt := range tok.TopLogProbs {
				pos.Alternatives = append(pos.Alternatives, domain.TokenCandidate{
					Text:           alt.Token,
					LogProbability: alt.LogProb,
				})
			}
		}
		positions = append(positions, pos)
	}
	return positions
}

// buildChatCompletionRequest creates an openai.ChatCompletionRequest from a prompt and options.
func (p *openAIProvider) buildChatCompletionRequest(prompt string, options RequestOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    options.Model,
		Messages: p.buildMessages(prompt, options),
	}

	p.applyRequestParameters(&req, options)
	return req
}

// buildMessages constructs the messages from the user prompt and an
// optional system prompt.
func (p *openAIProvider) buildMessages(prompt string, options RequestOptions) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)

	if options.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: options.System,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	return messages
}

// applyRequestParameters applies and validates optional parameters to the request.
func (p *openAIProvider) applyRequestParameters(req *openai.ChatCompletionRequest, options RequestOptions) {
	// The client drops zero-valued sampling fields, which the API reads as
	// its defaults. The smallest positive float32 keeps a requested zero.
	if options.Temperature != nil {
		temp := float32(ClampFloat64(*options.Temperature, MinTemperature, MaxTemperature))
		if temp == 0 {
			temp = math.SmallestNonzeroFloat32
		}
		req.Temperature = temp
	}

	if options.TopP != nil {
		topP := float32(ClampFloat64(*options.TopP, MinTopP, MaxTopP))
		if topP == 0 {
			topP = math.SmallestNonzeroFloat32
		}
		req.TopP = topP
	}

	if options.MaxTokens > 0 {
		req.MaxTokens = options.MaxTokens
	}

	if options.LogProbs {
		req.LogProbs = true
		req.TopLogProbs = ClampInt(options.TopLogProbs, MinTopLogProbs, MaxTopLogProbs)
	}

	if options.ResponseFormat == ResponseFormatJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	if seed, ok := options.Extra["seed"].(int); ok {
		req.Seed = &seed
	}
}

// handleError classifies and wraps errors from the OpenAI API.
func (p *openAIProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}

		return p.errorClassifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.errorClassifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError("openai", ErrorTypeUnknown, 0, "request failed", err)
}
