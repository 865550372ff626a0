// Package dataverse talks to the Dataverse Web API: token acquisition,
// query execution and the $metadata document.
package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kyleking/dataverse-agent/internal/config"
	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/metrics"
)

const (
	defaultAPIVersion = "v9.2"
	defaultTimeout    = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in the error
	maxErrorBody = 4096
)

// Client executes requests against one Dataverse environment
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	tokens     TokenSource
	logger     *logging.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource replaces the client-credentials token cache
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		if ts != nil {
			c.tokens = ts
		}
	}
}

// WithLogger sets the client logger
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for cfg. Unless a token source is supplied,
// credentials are required.
func NewClient(cfg config.DataverseConfig, opts ...ClientOption) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.NewConfigError("Dataverse URL is required", "dataverse.url")
	}

	timeout := config.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.tokens == nil {
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, errors.NewConfigError("Dataverse tenant ID, client ID and client secret are required", "dataverse")
		}

		c.tokens = NewTokenCache(
			TokenURL(cfg.AuthorityURL, cfg.TenantID),
			cfg.ClientID,
			cfg.ClientSecret,
			c.baseURL,
			config.Duration(cfg.TokenSkew),
			c.httpClient,
		)
	}

	return c, nil
}

// BaseURL returns the environment root, without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves a path relative to the Web API root
func (c *Client) URL(relative string) string {
	return fmt.Sprintf("%s/api/data/%s/%s", c.baseURL, c.apiVersion, strings.TrimLeft(relative, "/"))
}

// Get executes a compiled query and decodes the JSON response body
func (c *Client) Get(ctx context.Context, relative string) (map[string]any, error) {
	body, err := c.do(ctx, "query", c.URL(relative), "application/json")
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeParse, "failed to decode Dataverse response")
	}

	return result, nil
}

// Metadata downloads the raw $metadata document
func (c *Client) Metadata(ctx context.Context) ([]byte, error) {
	return c.do(ctx, "metadata", c.URL("$metadata"), "application/xml")
}

func (c *Client) do(ctx context.Context, operation, url, accept string) ([]byte, error) {
	start := time.Now()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		metrics.ObserveDataverseRequest(operation, "auth_error", time.Since(start))
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to build Dataverse request")
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")

	c.logger.WithFields(map[string]interface{}{
		"component": "dataverse",
		"operation": operation,
		"url":       url,
	}).Debug("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveDataverseRequest(operation, "error", time.Since(start))
		return nil, errors.Wrapf(err, errors.ErrTypeTransport, "request to %s failed", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveDataverseRequest(operation, "error", time.Since(start))
		return nil, errors.Wrap(err, errors.ErrTypeTransport, "failed to read Dataverse response")
	}

	metrics.ObserveDataverseRequest(operation, statusClass(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}

		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}

		return nil, errors.NewTransportError(url, resp.StatusCode, string(body))
	}

	return body, nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
