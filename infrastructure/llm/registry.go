package llm

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/softscore/internal/ports"
)

// JudgeRef is a parsed judge reference of the form
// "provider[/model][@version]".
type JudgeRef struct {
	Provider string
	// Model is empty when the reference names only a provider.
	Model string
	// Version is informational. Providers address models by name only.
	Version string
}

// ParseJudgeRef parses a judge reference such as "openai/gpt-4o-mini",
// "google" or "anthropic/claude-3-5-haiku-20241022@latest".
func ParseJudgeRef(spec string) (JudgeRef, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return JudgeRef{}, fmt.Errorf("judge reference cannot be empty")
	}

	var ref JudgeRef
	spec, ref.Version, _ = strings.Cut(spec, "@")
	ref.Provider, ref.Model, _ = strings.Cut(spec, "/")

	if ref.Provider == "" {
		return JudgeRef{}, fmt.Errorf("judge reference %q has no provider", spec)
	}
	if strings.HasSuffix(spec, "/") {
		return JudgeRef{}, fmt.Errorf("judge reference %q has an empty model", spec)
	}
	return ref, nil
}

// String returns the reference without its version.
func (r JudgeRef) String() string {
	if r.Model == "" {
		return r.Provider
	}
	return r.Provider + "/" + r.Model
}

// ProviderConfig describes one judge provider.
type ProviderConfig struct {
	// Type selects the provider factory (openai, anthropic, google).
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used when a reference names only the provider.
	DefaultModel string
	// SupportedModels restricts the accepted models. Empty allows any model.
	SupportedModels []string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Middleware is applied inside the registry-wide middleware.
	Middleware []Middleware
	// LogProbs reports whether the provider returns token log-probabilities.
	LogProbs bool
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Providers map[string]ProviderConfig
	// DefaultProvider must be a key of Providers.
	DefaultProvider string
	// DefaultTimeout is the request timeout of every created client.
	DefaultTimeout time.Duration
	// DefaultMiddleware wraps every created client, outermost first.
	DefaultMiddleware []Middleware
}

// DefaultProviders provides standard judge provider configurations.
// Only OpenAI and Google return token log-probabilities; Anthropic judges
// fall back to text-only scoring.
var DefaultProviders = map[string]ProviderConfig{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: "gpt-4o-mini",
		LogProbs:     true,
		SupportedModels: []string{
			"gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano",
			"gpt-4o", "gpt-4o-mini",
			"gpt-4", "gpt-4-turbo",
			"gpt-3.5-turbo",
		},
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: "claude-3-5-haiku-20241022",
		SupportedModels: []string{
			"claude-sonnet-4-20250514", "claude-opus-4-20250514",
			"claude-3-7-sonnet-20250219",
			"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022",
			"claude-3-haiku-20240307",
		},
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: "gemini-2.0-flash",
		LogProbs:     true,
		SupportedModels: []string{
			"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite",
			"gemini-2.0-flash", "gemini-2.0-flash-lite",
			"gemini-1.5-pro", "gemini-1.5-flash",
		},
	},
}

// ProviderInfo summarizes a configured provider.
type ProviderInfo struct {
	Name         string
	DefaultModel string
	EnvVar       string
	LogProbs     bool
	// Configured reports whether EnvVar is set in the environment.
	Configured bool
}

// Registry resolves judge references to clients. Clients are created on
// first use and cached per provider/model pair. It is safe for concurrent
// use.
//
//	registry, err := llm.NewRegistry(llm.RegistryConfig{
//	    DefaultProvider: "openai",
//	    Providers:       llm.DefaultProviders,
//	})
//	judge, err := registry.GetClient("openai/gpt-4o-mini")
//	judge, err := registry.GetClient("google") // provider default model
type Registry struct {
	mu              sync.RWMutex
	providers       map[string]ProviderConfig
	clients         map[string]ports.JudgeClient
	defaultProvider string
	middleware      []Middleware
	timeout         time.Duration
}

// NewRegistry creates a registry. The default provider must be configured.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, ok := config.Providers[config.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}

	return &Registry{
		providers:       config.Providers,
		clients:         make(map[string]ports.JudgeClient),
		defaultProvider: config.DefaultProvider,
		middleware:      config.DefaultMiddleware,
		timeout:         config.DefaultTimeout,
	}, nil
}

// GetDefaultClient returns the client for the default provider's default
// model.
func (r *Registry) GetDefaultClient() (ports.JudgeClient, error) {
	return r.GetClient(r.defaultProvider)
}

// GetClient returns the client for a judge reference. A reference without
// a model resolves to the provider's default model.
func (r *Registry) GetClient(spec string) (ports.JudgeClient, error) {
	ref, err := r.resolve(spec)
	if err != nil {
		return nil, err
	}
	key := ref.String()

	r.mu.RLock()
	client, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err = r.createClient(ref)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

// Register installs core under spec, wrapped in the registry and provider
// middleware. It replaces any cached client for the same reference. The
// provider must be configured; the model list and API key are not checked.
func (r *Registry) Register(spec string, core CoreLLM) error {
	ref, err := r.resolve(spec)
	if err != nil {
		return err
	}
	if core == nil {
		return fmt.Errorf("judge %s: core cannot be nil", ref)
	}
	core.SetModel(ref.Model)

	client := NewClientFromCore(core, &SimpleTokenEstimator{}, r.chain(r.providers[ref.Provider])...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[ref.String()] = client
	return nil
}

// SupportsLogProbs reports whether the provider named in spec returns
// token log-probabilities. Unknown providers report false.
func (r *Registry) SupportsLogProbs(spec string) bool {
	ref, err := ParseJudgeRef(spec)
	if err != nil {
		return false
	}
	return r.providers[ref.Provider].LogProbs
}

// Describe lists the configured providers sorted by name.
func (r *Registry) Describe() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(r.providers))
	for name, p := range r.providers {
		infos = append(infos, ProviderInfo{
			Name:         name,
			DefaultModel: p.DefaultModel,
			EnvVar:       p.EnvVar,
			LogProbs:     p.LogProbs,
			Configured:   p.EnvVar != "" && os.Getenv(p.EnvVar) != "",
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// resolve parses spec, checks the provider and fills in the default model.
func (r *Registry) resolve(spec string) (JudgeRef, error) {
	ref, err := ParseJudgeRef(spec)
	if err != nil {
		return JudgeRef{}, err
	}

	p, ok := r.providers[ref.Provider]
	if !ok {
		return JudgeRef{}, fmt.Errorf("unknown provider %q", ref.Provider)
	}
	if ref.Model == "" {
		ref.Model = p.DefaultModel
	}
	return ref, nil
}

func (r *Registry) createClient(ref JudgeRef) (ports.JudgeClient, error) {
	p := r.providers[ref.Provider]

	if len(p.SupportedModels) > 0 && !slices.Contains(p.SupportedModels, ref.Model) {
		return nil, fmt.Errorf("model %q is not supported by provider %q. Supported models: %v",
			ref.Model, ref.Provider, p.SupportedModels)
	}

	apiKey := os.Getenv(p.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", p.EnvVar, ref.Provider)
	}

	client, err := NewClient(p.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      ref.Model,
		BaseURL:    p.BaseURL,
		Timeout:    r.timeout,
		Middleware: r.chain(p),
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// chain returns the registry middleware followed by the provider's own.
func (r *Registry) chain(p ProviderConfig) []Middleware {
	chain := make([]Middleware, 0, len(r.middleware)+len(p.Middleware))
	chain = append(chain, r.middleware...)
	return append(chain, p.Middleware...)
}
