// Package llm provides the generation oracles: HTTP clients for hosted and
// local model providers and a manager that adds retries and fallbacks.
package llm

import (
	"context"
	"time"
)

// Service is one configured text-generation provider
type Service interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Configure(config Config) error
}

// Config represents one provider's settings
type Config struct {
	Provider    string        `json:"provider"` // gemini, openai, anthropic, ollama
	Model       string        `json:"model"`
	APIKey      string        `json:"api_key,omitempty"`
	BaseURL     string        `json:"base_url,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// Provider constants for different LLM providers
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Default models per provider
const (
	ModelGemini    = "gemini-2.5-flash"
	ModelOpenAI    = "gpt-4o-mini"
	ModelAnthropic = "claude-3-5-haiku-latest"
	ModelOllama    = "llama3.1"
)

// Default endpoints per provider
const (
	BaseURLGemini    = "https://generativelanguage.googleapis.com"
	BaseURLOpenAI    = "https://api.openai.com/v1"
	BaseURLAnthropic = "https://api.anthropic.com/v1"
	BaseURLOllama    = "http://localhost:11434"
)

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return ModelGemini
	case ProviderOpenAI:
		return ModelOpenAI
	case ProviderAnthropic:
		return ModelAnthropic
	case ProviderOllama:
		return ModelOllama
	default:
		return ""
	}
}

// DefaultBaseURL returns the endpoint used when none is configured
func DefaultBaseURL(provider string) string {
	switch provider {
	case ProviderGemini:
		return BaseURLGemini
	case ProviderOpenAI:
		return BaseURLOpenAI
	case ProviderAnthropic:
		return BaseURLAnthropic
	case ProviderOllama:
		return BaseURLOllama
	default:
		return ""
	}
}
