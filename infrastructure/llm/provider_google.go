package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/softscore/internal/domain"
)

// Google provider constants.
const (
	// GoogleDefaultModel is the default model for the Google provider.
	GoogleDefaultModel = "gemini-2.0-flash"

	// googleMaxTopK is the largest top_k Gemini accepts.
	googleMaxTopK = 40
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements the CoreLLM interface for Google's Gemini API.
// Gemini reports chosen and top candidate log-probabilities per position
// when ResponseLogprobs is set.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

// newGoogleProvider creates a new Google Gemini provider instance.
func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	authConfig, err := buildAuthConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}

	client, err := genai.NewClient(context.Background(), authConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends a request to the Gemini API and returns the judge reply.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := p.buildGenerationConfig(options)

	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, config)
	if err != nil {
		return domain.JudgeReply{}, p.handleError(err)
	}

	content := resp.Text()
	if content == "" {
		return domain.JudgeReply{}, ErrEmptyResponse
	}

	var tokens []domain.TokenPosition
	if len(resp.Candidates) > 0 {
		tokens = convertGoogleLogProbs(resp.Candidates[0].LogprobsResult)
	}

	return domain.JudgeReply{
		Text:      content,
		Tokens:    tokens,
		Model:     options.Model,
		TokensIn:  p.getTokenCount(resp.UsageMetadata, true, prompt),
		TokensOut: p.getTokenCount(resp.UsageMetadata, false, content),
	}, nil
}

// convertGoogleLogProbs maps Gemini's chosen and top candidates onto token
// positions. TopCandidates is indexed by position like ChosenCandidates.
func convertGoogleLogProbs(result *genai.LogprobsResult) []domain.TokenPosition {
	if result == nil || len(result.ChosenCandidates) == 0 {
		return nil
	}

	positions := make([]domain.TokenPosition, 0, len(result.ChosenCandidates))
	for i, chosen := range result.ChosenCandidates {
		if chosen == nil {
			continue
		}
		pos := domain.TokenPosition{
			Chosen: domain.TokenCandidate{
				Text:           chosen.Token,
				LogProbability: float64(chosen.LogProbability),
			},
		}
		if i < len(result.TopCandidates) && result.TopCandidates[i] != nil {
			top := result.TopCandidates[i].Candidates
			pos.Alternatives = make([]domain.TokenCandidate, 0, len(top))
			for _, alt := range top {
				if alt == nil {
					continue
				}
				pos.Alternatives = append(pos.Alternatives, domain.TokenCandidate{
					Text:           alt.Token,
					LogProbability: float64(alt.LogProbability),
				})
			}
		}
		positions = append(positions, pos)
	}
	return positions
}

// getTokenCount retrieves the token count from the response metadata and
// falls back to estimating from text.
func (p *googleProvider) getTokenCount(usage *genai.GenerateContentResponseUsageMetadata, isInput bool, text string) int {
	if usage != nil {
		if isInput && usage.PromptTokenCount > 0 {
			return int(usage.PromptTokenCount)
		}
		if !isInput && usage.CandidatesTokenCount > 0 {
			return int(usage.CandidatesTokenCount)
		}
	}
	return p.tokenCounter.EstimateTokens(text)
}

// buildGenerationConfig creates the generation configuration for a Gemini
// request.
func (p *googleProvider) buildGenerationConfig(options RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if options.System != "" {
		config.SystemInstruction = genai.NewContentFromText(options.System, genai.RoleUser)
	}

	if options.Temperature != nil {
		temp := ClampFloat64(*options.Temperature, MinTemperature, MaxTemperature)
		config.Temperature = genai.Ptr(float32(temp))
	}

	if options.MaxTokens > 0 {
		if maxTokens, ok := SafeInt32(options.MaxTokens); ok {
			config.MaxOutputTokens = maxTokens
		}
	}

	if options.TopP != nil {
		topP := ClampFloat64(*options.TopP, MinTopP, MaxTopP)
		config.TopP = genai.Ptr(float32(topP))
	}

	if topK, ok := options.Extra["top_k"].(int); ok {
		topK = ClampInt(topK, 1, googleMaxTopK)
		config.TopK = genai.Ptr(float32(topK))
	}

	if options.LogProbs {
		config.ResponseLogprobs = true
		if n, ok := SafeInt32(ClampInt(options.TopLogProbs, MinTopLogProbs, MaxTopLogProbs)); ok {
			config.Logprobs = genai.Ptr(n)
		}
	}

	if options.ResponseFormat == ResponseFormatJSON {
		config.ResponseMIMEType = "application/json"
	}

	return config
}

// handleError classifies errors from the Gemini API into ProviderErrors.
func (p *googleProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		if isPolicyMessage(genaiErr.Message) {
			return NewProviderError("google", ErrorTypeContentPolicy, genaiErr.Code,
				"request blocked by safety filters", err)
		}
		return p.errorClassifier.ClassifyHTTPError(genaiErr.Code, genaiErr.Message, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}

		if containsContentPolicyError(apiErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}

		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	return NewProviderError("google", ErrorTypeUnknown, 0, "request failed", err)
}

// buildAuthConfig creates the authentication configuration. Only API key
// authentication is supported; a credentials file path is rejected with
// guidance.
func buildAuthConfig(config ClientConfig) (*genai.ClientConfig, error) {
	if looksLikeFilePath(config.APIKey) {
		if !fileExists(config.APIKey) {
			return nil, fmt.Errorf("credentials file not found: %s", config.APIKey)
		}

		return nil, fmt.Errorf("service account authentication requires additional configuration. " +
			"Please use API key authentication or set GOOGLE_APPLICATION_CREDENTIALS environment variable")
	}

	return &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}, nil
}

// looksLikeFilePath checks if a string appears to be a file path rather
// than an API key.
func looksLikeFilePath(s string) bool {
	if filepath.IsAbs(s) {
		return true
	}

	if strings.Contains(s, "/") || strings.Contains(s, "\\") {
		return true
	}

	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".json") ||
		strings.HasSuffix(lower, ".p12") ||
		strings.HasSuffix(lower, ".pem") ||
		strings.Contains(lower, "credentials")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// containsContentPolicyError checks if a Google API error is related to
// content policy violations.
func containsContentPolicyError(apiErr *googleapi.Error) bool {
	if isPolicyMessage(apiErr.Message) {
		return true
	}

	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}

	return false
}

func isPolicyMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "policy") ||
		strings.Contains(lower, "blocked")
}
