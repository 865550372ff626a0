package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kyleking/dataverse-agent/internal/errors"
)

const defaultTimeout = 120 * time.Second

// Client implements Service for every supported provider over plain HTTP
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client; call Configure before Generate
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Config returns the active configuration
func (c *Client) Config() Config {
	return c.config
}

// Configure validates config, fills provider defaults and applies it
func (c *Client) Configure(config Config) error {
	if config.Provider == "" {
		return errors.NewConfigError("provider is required", "llm.provider")
	}

	switch config.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		if config.APIKey == "" {
			return errors.NewConfigError(fmt.Sprintf("API key is required for %s provider", config.Provider), "llm.api_key")
		}
	case ProviderOllama:
	default:
		return errors.NewConfigError(fmt.Sprintf("unsupported provider: %s", config.Provider), "llm.provider")
	}

	if config.Model == "" {
		config.Model = DefaultModel(config.Provider)
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL(config.Provider)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout > 0 {
		c.httpClient.Timeout = config.Timeout
	}

	c.config = config

	return nil
}

// Generate sends both prompt blocks and returns the model's text
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	switch c.config.Provider {
	case ProviderGemini:
		return c.generateGemini(ctx, systemPrompt, userPrompt)
	case ProviderOpenAI:
		return c.generateOpenAI(ctx, systemPrompt, userPrompt)
	case ProviderAnthropic:
		return c.generateAnthropic(ctx, systemPrompt, userPrompt)
	case ProviderOllama:
		return c.generateOllama(ctx, systemPrompt, userPrompt)
	case "":
		return "", errors.New(errors.ErrTypeConfig, "LLM client not configured")
	default:
		return "", errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", c.config.Provider)
	}
}

// combinePrompts joins the blocks for providers taking a single user turn
func combinePrompts(systemPrompt, userPrompt string) string {
	return strings.TrimSpace(systemPrompt) + "\n\n" + strings.TrimSpace(userPrompt)
}

// Gemini API structures
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// generateGemini sends one user turn holding both prompts. A response without
// candidate text is returned verbatim so the caller can report it.
func (c *Client) generateGemini(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: combinePrompts(systemPrompt, userPrompt)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     c.config.Temperature,
			MaxOutputTokens: c.config.MaxTokens,
		},
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.config.BaseURL, url.PathEscape(c.config.Model))

	body, err := c.post(ctx, endpoint, reqBody, map[string]string{"x-goog-api-key": c.config.APIKey})
	if err != nil {
		return "", err
	}

	var response geminiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeTransport, "failed to parse Gemini response")
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return string(body), nil
	}

	return response.Candidates[0].Content.Parts[0].Text, nil
}

// OpenAI API structures
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) generateOpenAI(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	body, err := c.post(ctx, c.config.BaseURL+"/chat/completions", reqBody,
		map[string]string{"Authorization": "Bearer " + c.config.APIKey})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeTransport, "failed to parse OpenAI response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeTransport, "OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", errors.New(errors.ErrTypeTransport, "no response from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) generateAnthropic(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	maxTokens := c.config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	reqBody := anthropicRequest{
		Model:       c.config.Model,
		MaxTokens:   maxTokens,
		System:      systemPrompt,
		Temperature: c.config.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
	}

	body, err := c.post(ctx, c.config.BaseURL+"/messages", reqBody, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeTransport, "failed to parse Anthropic response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeTransport, "Anthropic API error: %s", response.Error.Message)
	}

	var sb strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", errors.New(errors.ErrTypeTransport, "no response from Anthropic")
	}

	return sb.String(), nil
}

// Ollama API structures
type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) generateOllama(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: map[string]any{
			"temperature": c.config.Temperature,
		},
	}

	body, err := c.post(ctx, c.config.BaseURL+"/api/generate", reqBody, nil)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeTransport, "failed to parse Ollama response")
	}

	if response.Error != "" {
		return "", errors.Newf(errors.ErrTypeTransport, "Ollama API error: %s", response.Error)
	}

	return response.Response, nil
}

// post sends a JSON body and returns the response body of a 200 reply
func (c *Client) post(ctx context.Context, endpoint string, reqBody interface{}, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeTransport, "%s request failed", c.config.Provider)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeTransport, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTransportError(c.config.Provider, resp.StatusCode, string(body))
	}

	return body, nil
}
