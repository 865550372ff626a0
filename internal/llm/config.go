package llm

import (
	"os"
	"strings"

	"github.com/kyleking/dataverse-agent/internal/config"
	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
)

// providerEnv names the provider-specific variables consulted when the
// application config leaves a provider's key, model or endpoint empty
var providerEnv = map[string]struct{ key, model, baseURL string }{
	ProviderGemini:    {key: "GEMINI_API_KEY", model: "GEMINI_MODEL", baseURL: "GEMINI_BASE_URL"},
	ProviderOpenAI:    {key: "OPENAI_API_KEY", model: "OPENAI_MODEL", baseURL: "OPENAI_BASE_URL"},
	ProviderAnthropic: {key: "ANTHROPIC_API_KEY", model: "ANTHROPIC_MODEL", baseURL: "ANTHROPIC_BASE_URL"},
	ProviderOllama:    {model: "OLLAMA_MODEL", baseURL: "OLLAMA_BASE_URL"},
}

// NewManagerFromConfig builds a manager with the configured primary provider
// and every fallback that can be configured. The primary must configure.
func NewManagerFromConfig(cfg config.LLMConfig) (*Manager, error) {
	return newManagerFromConfig(cfg, os.Getenv)
}

func newManagerFromConfig(cfg config.LLMConfig, getenv func(string) string) (*Manager, error) {
	primary := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if primary == "" {
		primary = ProviderGemini
	}

	manager := NewManager(ManagerConfig{
		DefaultProvider:   primary,
		FallbackProviders: normalizeProviders(cfg.FallbackProviders),
		RetryAttempts:     max(cfg.RetryAttempts, 0),
		RetryDelay:        config.Duration(cfg.RetryDelay),
	})

	base := Config{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     config.Duration(cfg.Timeout),
	}

	primaryCfg := base
	primaryCfg.Provider = primary
	primaryCfg.Model = cfg.Model
	primaryCfg.APIKey = cfg.APIKey
	primaryCfg.BaseURL = cfg.BaseURL
	fromEnvironment(&primaryCfg, getenv)

	client := NewClient(primaryCfg)
	if err := client.Configure(primaryCfg); err != nil {
		return nil, err
	}

	if err := manager.RegisterProvider(primary, client); err != nil {
		return nil, err
	}

	for _, name := range manager.config.FallbackProviders {
		if manager.IsProviderRegistered(name) {
			continue
		}

		fallbackCfg := base
		fallbackCfg.Provider = name
		fromEnvironment(&fallbackCfg, getenv)

		fallback := NewClient(fallbackCfg)
		if err := fallback.Configure(fallbackCfg); err != nil {
			logging.WithField("provider", name).WithError(err).Warn("skipping fallback provider")
			continue
		}

		if err := manager.RegisterProvider(name, fallback); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeConfig, "failed to register %s", name)
		}
	}

	return manager, nil
}

// fromEnvironment fills empty fields from the provider's own variables
func fromEnvironment(cfg *Config, getenv func(string) string) {
	names, ok := providerEnv[cfg.Provider]
	if !ok {
		return
	}

	if cfg.APIKey == "" && names.key != "" {
		cfg.APIKey = getenv(names.key)
	}

	if cfg.Model == "" {
		cfg.Model = getenv(names.model)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = getenv(names.baseURL)
	}
}

func normalizeProviders(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			out = append(out, name)
		}
	}

	return out
}
