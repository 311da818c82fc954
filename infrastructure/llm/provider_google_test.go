package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

func TestNewGoogleProvider(t *testing.T) {
	tests := []struct {
		name          string
		config        ClientConfig
		expectError   bool
		expectedModel string
	}{
		{
			name:          "valid API key configuration",
			config:        ClientConfig{APIKey: "test-api-key", Model: "gemini-1.5-pro"},
			expectedModel: "gemini-1.5-pro",
		},
		{
			name:          "default model when not specified",
			config:        ClientConfig{APIKey: "test-api-key"},
			expectedModel: GoogleDefaultModel,
		},
		{
			name:        "file path authentication should error",
			config:      ClientConfig{APIKey: "/path/to/credentials.json", Model: "gemini-1.5-pro"},
			expectError: true,
		},
		{
			name:        "empty API key should error",
			config:      ClientConfig{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := newGoogleProvider(tt.config)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, provider)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, provider)
			assert.Equal(t, tt.expectedModel, provider.GetModel())
		})
	}
}

func TestBuildAuthConfig_ExistingCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service-account.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := buildAuthConfig(ClientConfig{APIKey: path})
	assert.ErrorContains(t, err, "service account authentication")

	_, err = buildAuthConfig(ClientConfig{APIKey: filepath.Join(t.TempDir(), "missing.json")})
	assert.ErrorContains(t, err, "credentials file not found")
}

func TestLooksLikeFilePath(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"AIzaSyExampleKey123", false},
		{"/etc/keys/sa.json", true},
		{"keys/sa.json", true},
		{`C:\keys\sa.json`, true},
		{"sa.json", true},
		{"cert.pem", true},
		{"my-credentials", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeFilePath(tt.in))
		})
	}
}

func TestGoogleProvider_GetSetModel(t *testing.T) {
	provider, err := newGoogleProvider(ClientConfig{APIKey: "test-key", Model: "gemini-1.5-pro"})
	require.NoError(t, err)

	assert.Equal(t, "gemini-1.5-pro", provider.GetModel())

	provider.SetModel(GoogleDefaultModel)
	assert.Equal(t, GoogleDefaultModel, provider.GetModel())
}

func TestBuildGenerationConfig(t *testing.T) {
	provider := &googleProvider{BaseProvider: BaseProvider{model: GoogleDefaultModel}}

	t.Run("empty options", func(t *testing.T) {
		config := provider.buildGenerationConfig(RequestOptions{Model: GoogleDefaultModel})

		assert.Nil(t, config.Temperature)
		assert.Equal(t, int32(0), config.MaxOutputTokens)
		assert.Nil(t, config.TopP)
		assert.Nil(t, config.TopK)
		assert.Nil(t, config.SystemInstruction)
		assert.False(t, config.ResponseLogprobs)
		assert.Nil(t, config.Logprobs)
		assert.Empty(t, config.ResponseMIMEType)
	})

	t.Run("plain scoring request", func(t *testing.T) {
		zero := 0.0
		config := provider.buildGenerationConfig(RequestOptions{
			Model:       GoogleDefaultModel,
			MaxTokens:   1,
			Temperature: &zero,
			TopP:        &zero,
			LogProbs:    true,
			TopLogProbs: 5,
		})

		require.NotNil(t, config.Temperature)
		assert.Equal(t, float32(0), *config.Temperature)
		require.NotNil(t, config.TopP)
		assert.Equal(t, float32(0), *config.TopP)
		assert.Equal(t, int32(1), config.MaxOutputTokens)
		assert.True(t, config.ResponseLogprobs)
		require.NotNil(t, config.Logprobs)
		assert.Equal(t, int32(5), *config.Logprobs)
	})

	t.Run("top logprobs clamped", func(t *testing.T) {
		config := provider.buildGenerationConfig(RequestOptions{LogProbs: true, TopLogProbs: 50})
		require.NotNil(t, config.Logprobs)
		assert.Equal(t, int32(MaxTopLogProbs), *config.Logprobs)
	})

	t.Run("explain request", func(t *testing.T) {
		config := provider.buildGenerationConfig(RequestOptions{
			Model:          GoogleDefaultModel,
			MaxTokens:      DefaultMaxTokens,
			System:         "You are a strict grader.",
			ResponseFormat: ResponseFormatJSON,
		})

		require.NotNil(t, config.SystemInstruction)
		require.Len(t, config.SystemInstruction.Parts, 1)
		assert.Equal(t, "You are a strict grader.", config.SystemInstruction.Parts[0].Text)
		assert.Equal(t, "application/json", config.ResponseMIMEType)
		assert.Equal(t, int32(DefaultMaxTokens), config.MaxOutputTokens)
	})

	t.Run("top_k clamped", func(t *testing.T) {
		config := provider.buildGenerationConfig(RequestOptions{Extra: map[string]any{"top_k": 100}})
		require.NotNil(t, config.TopK)
		assert.Equal(t, float32(googleMaxTopK), *config.TopK)
	})

	t.Run("temperature clamped", func(t *testing.T) {
		hot := 5.0
		config := provider.buildGenerationConfig(RequestOptions{Temperature: &hot})
		require.NotNil(t, config.Temperature)
		assert.Equal(t, float32(MaxTemperature), *config.Temperature)
	})
}

func TestConvertGoogleLogProbs(t *testing.T) {
	assert.Nil(t, convertGoogleLogProbs(nil))
	assert.Nil(t, convertGoogleLogProbs(&genai.LogprobsResult{}))

	got := convertGoogleLogProbs(&genai.LogprobsResult{
		ChosenCandidates: []*genai.LogprobsResultCandidate{
			{Token: "4", LogProbability: -0.25},
			nil,
			{Token: "\n", LogProbability: -0.01},
		},
		TopCandidates: []*genai.LogprobsResultTopCandidates{
			{Candidates: []*genai.LogprobsResultCandidate{
				{Token: "4", LogProbability: -0.25},
				{Token: "5", LogProbability: -1.5},
				nil,
			}},
		},
	})

	require.Len(t, got, 2)
	assert.Equal(t, domain.TokenCandidate{Text: "4", LogProbability: -0.25}, got[0].Chosen)
	assert.Equal(t, []domain.TokenCandidate{
		{Text: "4", LogProbability: -0.25},
		{Text: "5", LogProbability: -1.5},
	}, got[0].Alternatives)
	assert.Equal(t, "\n", got[1].Chosen.Text)
	assert.Empty(t, got[1].Alternatives, "positions past the top candidate list have no alternatives")
}

func TestGoogleProvider_HandleError(t *testing.T) {
	provider := &googleProvider{
		BaseProvider:    BaseProvider{model: GoogleDefaultModel},
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}

	tests := []struct {
		name         string
		inputError   error
		expectedType ErrorType
		expectedIs   error
	}{
		{
			name:         "context canceled",
			inputError:   context.Canceled,
			expectedType: ErrorTypeNetwork,
		},
		{
			name:         "context timeout",
			inputError:   context.DeadlineExceeded,
			expectedType: ErrorTypeTimeout,
			expectedIs:   ports.ErrTimeout,
		},
		{
			name:         "genai rate limit",
			inputError:   genai.APIError{Code: 429, Message: "Resource has been exhausted", Status: "RESOURCE_EXHAUSTED"},
			expectedType: ErrorTypeRateLimit,
			expectedIs:   ports.ErrRateLimited,
		},
		{
			name:         "genai safety block",
			inputError:   genai.APIError{Code: 400, Message: "Request blocked by safety settings"},
			expectedType: ErrorTypeContentPolicy,
		},
		{
			name:         "googleapi permission denied",
			inputError:   &googleapi.Error{Code: 403, Message: "API key not valid"},
			expectedType: ErrorTypeAuthentication,
			expectedIs:   ports.ErrAuthenticationFailed,
		},
		{
			name: "googleapi safety reason",
			inputError: &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{
				{Reason: "SAFETY", Message: "candidate filtered"},
			}},
			expectedType: ErrorTypeContentPolicy,
		},
		{
			name:         "googleapi unavailable",
			inputError:   &googleapi.Error{Code: 503, Message: "The model is overloaded"},
			expectedType: ErrorTypeServerError,
			expectedIs:   ports.ErrServiceUnavailable,
		},
		{
			name:         "generic error",
			inputError:   fmt.Errorf("unknown error"),
			expectedType: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := provider.handleError(tt.inputError)

			var provErr *ProviderError
			require.ErrorAs(t, result, &provErr)
			assert.Equal(t, tt.expectedType, provErr.Type)
			assert.Equal(t, "google", provErr.Provider)
			if tt.expectedIs != nil {
				assert.ErrorIs(t, result, tt.expectedIs)
			}
		})
	}
}

// TestGoogleProvider_Integration exercises the live API when a key is present.
func TestGoogleProvider_Integration(t *testing.T) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" || testing.Short() {
		t.Skip("GOOGLE_API_KEY not set")
	}

	provider, err := newGoogleProvider(ClientConfig{APIKey: apiKey, Model: GoogleDefaultModel})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply, err := provider.DoRequest(ctx, "Answer with a single digit from 1 to 5: how good is the number 4?", map[string]any{
		"max_tokens":   1,
		"temperature":  0.0,
		"logprobs":     true,
		"top_logprobs": 5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Text)
}

func BenchmarkBuildGenerationConfig(b *testing.B) {
	provider := &googleProvider{BaseProvider: BaseProvider{model: GoogleDefaultModel}}

	temp := 0.0
	options := RequestOptions{
		Model:       GoogleDefaultModel,
		Temperature: &temp,
		MaxTokens:   1,
		LogProbs:    true,
		TopLogProbs: 5,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		provider.buildGenerationConfig(options)
	}
}
