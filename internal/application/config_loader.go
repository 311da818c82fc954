package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// ConfigLoader provides YAML configuration parsing, validation, and caching
// for engine configurations.
// Use ConfigLoader to load configurations from files or readers while
// benefiting from SHA256-based caching and comprehensive validation.
type ConfigLoader struct {
	// validator performs struct field validation and the custom rules
	// registered by RegisterConfigValidators.
	validator *validator.Validate
	// cache stores validated configurations indexed by SHA256 hash of the
	// normalized YAML.
	// WARNING: Cached configurations MUST NOT be mutated.
	cache   map[string]*EngineConfig
	cacheMu sync.RWMutex
	// sf prevents duplicate validation when multiple goroutines load the
	// same configuration simultaneously.
	sf singleflight.Group
}

// NewConfigLoader creates a loader with the custom validators registered and
// an empty cache.
// It returns an error if validator registration fails.
func NewConfigLoader() (*ConfigLoader, error) {
	v := validator.New()

	if err := RegisterConfigValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	return &ConfigLoader{
		validator: v,
		cache:     make(map[string]*EngineConfig),
	}, nil
}

// LoadFromFile loads and validates an engine configuration from a YAML file.
// WARNING: The returned configuration is a pointer to a cached instance.
// Callers MUST NOT mutate it.
func (cl *ConfigLoader) LoadFromFile(ctx context.Context, path string) (*EngineConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return cl.load(ctx, data)
}

// LoadFromReader loads and validates an engine configuration from r.
// WARNING: The returned configuration is a pointer to a cached instance.
// Callers MUST NOT mutate it.
func (cl *ConfigLoader) LoadFromReader(ctx context.Context, r io.Reader) (*EngineConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	return cl.load(ctx, data)
}

func (cl *ConfigLoader) load(ctx context.Context, data []byte) (*EngineConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	config, err := cl.parseYAML(data)
	if err != nil {
		return nil, ports.NewConfigError("yaml", err)
	}
	config.applyDefaults()

	// Hash the normalized config so formatting differences share a cache entry.
	hash, err := cl.calculateConfigHash(config)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := cl.sf.Do(hash, func() (any, error) {
		if cached, ok := cl.getCached(hash); ok {
			return cached, nil
		}

		if err := cl.Validate(config); err != nil {
			return nil, err
		}

		cl.cacheConfig(hash, config)
		return config, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*EngineConfig), nil
}

// parseYAML uses strict decoding so that unknown fields, usually typos,
// are rejected instead of silently ignored.
func (cl *ConfigLoader) parseYAML(data []byte) (*EngineConfig, error) {
	var config EngineConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

// Validate performs struct tag validation followed by semantic validation.
// Struct failures are reported as a *domain.ValidationError.
func (cl *ConfigLoader) Validate(config *EngineConfig) error {
	if err := cl.validator.Struct(config); err != nil {
		verr := domain.NewValidationError("engine config")
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.AddError(fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			verr.AddError(err.Error())
		}
		return verr
	}

	if err := validateSemantics(config); err != nil {
		return fmt.Errorf("semantic validation failed: %w", err)
	}
	return nil
}

// validateSemantics checks rules struct tags cannot express: unique rubric
// names, prompts that parse as templates, and score properties used only
// by explain rubrics.
func validateSemantics(config *EngineConfig) error {
	verr := domain.NewValidationError("rubrics")
	seen := make(map[string]struct{}, len(config.Rubrics))

	for _, r := range config.Rubrics {
		if _, dup := seen[r.Name]; dup {
			verr.AddError(fmt.Sprintf("duplicate rubric name %q", r.Name))
		}
		seen[r.Name] = struct{}{}

		if _, err := parsePrompt(r.Name, r.Prompt); err != nil {
			verr.AddError(fmt.Sprintf("rubric %q prompt: %v", r.Name, err))
		}

		if r.ScoreProperty != "" && r.Mode != domain.ModeExplain {
			verr.AddError(fmt.Sprintf("rubric %q: score_property requires explain mode", r.Name))
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// calculateConfigHash computes the SHA256 hash of a normalized EngineConfig.
func (cl *ConfigLoader) calculateConfigHash(config *EngineConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("failed to encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (cl *ConfigLoader) getCached(hash string) (*EngineConfig, bool) {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()

	config, ok := cl.cache[hash]
	return config, ok
}

func (cl *ConfigLoader) cacheConfig(hash string, config *EngineConfig) {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()

	cl.cache[hash] = config
}

// ClearCache removes all cached configurations, forcing subsequent loads
// to validate from source.
func (cl *ConfigLoader) ClearCache() {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()

	cl.cache = make(map[string]*EngineConfig)
}

// FileSource returns a ports.ConfigLoader that loads path through cl.
func (cl *ConfigLoader) FileSource(path string) ports.ConfigLoader {
	return &fileSource{loader: cl, path: path}
}

type fileSource struct {
	loader *ConfigLoader
	path   string
}

// Load implements ports.ConfigLoader. config must be an *EngineConfig; it
// receives a copy of the loaded configuration.
func (f *fileSource) Load(ctx context.Context, config any) error {
	target, ok := config.(*EngineConfig)
	if !ok {
		return fmt.Errorf("unsupported config type %T", config)
	}

	loaded, err := f.loader.LoadFromFile(ctx, f.path)
	if err != nil {
		return err
	}

	*target = *loaded
	target.Rubrics = append([]domain.Rubric(nil), loaded.Rubrics...)
	return nil
}
