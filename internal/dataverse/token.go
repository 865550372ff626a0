package dataverse

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kyleking/dataverse-agent/internal/errors"
)

const (
	// DefaultAuthorityURL is the Microsoft identity platform host
	DefaultAuthorityURL = "https://login.microsoftonline.com"

	// defaultTokenLifetime applies when the token response carries no expires_in
	defaultTokenLifetime = time.Hour
)

// TokenSource yields a bearer token for the Web API
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenCache holds one client-credentials token and refreshes it once it is
// within skew of expiry. Safe for concurrent use.
type TokenCache struct {
	cfg        *clientcredentials.Config
	skew       time.Duration
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// TokenURL returns the v2.0 token endpoint for tenantID
func TokenURL(authority, tenantID string) string {
	if authority == "" {
		authority = DefaultAuthorityURL
	}

	return strings.TrimRight(authority, "/") + "/" + tenantID + "/oauth2/v2.0/token"
}

// NewTokenCache creates a cache requesting the "{resource}/.default" scope
func NewTokenCache(tokenURL, clientID, clientSecret, resource string, skew time.Duration, httpClient *http.Client) *TokenCache {
	return &TokenCache{
		cfg: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{strings.TrimRight(resource, "/") + "/.default"},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		skew:       skew,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// AccessToken returns the cached token or fetches a new one
func (tc *TokenCache) AccessToken(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := tc.now()
	if tc.token != "" && now.Before(tc.expires.Add(-tc.skew)) {
		return tc.token, nil
	}

	if tc.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, tc.httpClient)
	}

	tok, err := tc.cfg.Token(ctx)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeAuth, "failed to acquire Dataverse access token").
			WithSuggestion("Check the tenant ID, client ID and client secret")
	}

	expires := tok.Expiry
	if expires.IsZero() {
		expires = now.Add(defaultTokenLifetime)
	}

	tc.token = tok.AccessToken
	tc.expires = expires

	return tc.token, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.token = ""
	tc.expires = time.Time{}
}

// StaticToken is a fixed bearer token, useful against local test services
type StaticToken string

// AccessToken returns the token
func (s StaticToken) AccessToken(context.Context) (string, error) {
	return string(s), nil
}
