package llm

import (
	"context"
	stderrors "errors"
	"net/http"
	"sort"
	"time"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/metrics"
)

// Manager routes generation requests to a default provider, then to
// fallback providers, retrying each one a bounded number of times.
type Manager struct {
	providers map[string]Service
	config    ManagerConfig
	logger    *logging.Logger
}

// ManagerConfig configures the LLM manager behavior
type ManagerConfig struct {
	DefaultProvider   string        `json:"default_provider"`
	FallbackProviders []string      `json:"fallback_providers"`
	RetryAttempts     int           `json:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay"`
	Timeout           time.Duration `json:"timeout"`
}

// NewManager creates a manager with no providers registered
func NewManager(config ManagerConfig) *Manager {
	return &Manager{
		providers: make(map[string]Service),
		config:    config,
		logger:    logging.GetLogger(),
	}
}

// SetLogger replaces the manager logger
func (m *Manager) SetLogger(logger *logging.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// RegisterProvider registers a new LLM provider
func (m *Manager) RegisterProvider(name string, service Service) error {
	if name == "" {
		return errors.New(errors.ErrTypeConfig, "provider name cannot be empty")
	}

	if service == nil {
		return errors.New(errors.ErrTypeConfig, "service cannot be nil")
	}

	m.providers[name] = service

	return nil
}

// Configure configures a registered provider
func (m *Manager) Configure(config Config) error {
	provider, exists := m.providers[config.Provider]
	if !exists {
		return errors.Newf(errors.ErrTypeConfig, "provider %s not registered", config.Provider)
	}

	return provider.Configure(config)
}

// Generate tries the default provider, then each fallback in order. The
// error of the last provider tried is returned when all of them fail.
func (m *Manager) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	var lastErr error

	for _, name := range m.order() {
		provider, exists := m.providers[name]
		if !exists {
			continue
		}

		text, err := m.tryProvider(ctx, name, provider, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		m.logger.WithFields(map[string]interface{}{
			"component": "llm",
			"provider":  name,
		}).ErrorWithErr("provider failed", err)

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		return "", errors.New(errors.ErrTypeConfig, "no LLM provider is registered").
			WithSuggestion("Set DATAVERSE_AGENT_LLM_PROVIDER and its API key")
	}

	return "", lastErr
}

// order lists the default provider followed by distinct fallbacks
func (m *Manager) order() []string {
	seen := make(map[string]bool)

	var names []string
	for _, name := range append([]string{m.config.DefaultProvider}, m.config.FallbackProviders...) {
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true
		names = append(names, name)
	}

	return names
}

// tryProvider attempts one provider with retries
func (m *Manager) tryProvider(ctx context.Context, name string, provider Service, systemPrompt, userPrompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.config.RetryDelay):
			}
		}

		start := time.Now()
		text, err := provider.Generate(ctx, systemPrompt, userPrompt)
		if err == nil {
			metrics.ObserveOracleRequest(name, "success", time.Since(start))
			return text, nil
		}

		metrics.ObserveOracleRequest(name, "error", time.Since(start))
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}

	return "", lastErr
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	structured, ok := errors.As(err)
	if !ok {
		return true
	}

	if structured.Type == errors.ErrTypeConfig {
		return false
	}

	code := structured.StatusCode
	if code == 0 {
		return true
	}

	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// GetAvailableProviders returns the registered provider names, sorted
func (m *Manager) GetAvailableProviders() []string {
	providers := make([]string, 0, len(m.providers))
	for name := range m.providers {
		providers = append(providers, name)
	}

	sort.Strings(providers)

	return providers
}

// IsProviderRegistered checks if a provider is registered
func (m *Manager) IsProviderRegistered(name string) bool {
	_, exists := m.providers[name]
	return exists
}

// DefaultProvider returns the configured default provider name
func (m *Manager) DefaultProvider() string {
	return m.config.DefaultProvider
}
