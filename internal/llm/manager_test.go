package llm

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
)

// MockService implements the Service interface for testing
type MockService struct {
	mu sync.Mutex

	generateFunc   func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	configureFunc  func(config Config) error
	failWith       error
	shouldFail     bool
	failAfterCalls int
	callCount      int
}

func (m *MockService) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.callCount++
	count := m.callCount
	m.mu.Unlock()

	if m.shouldFail || (m.failAfterCalls > 0 && count <= m.failAfterCalls) {
		if m.failWith != nil {
			return "", m.failWith
		}
		return "", stderrors.New("mock service error")
	}

	if m.generateFunc != nil {
		return m.generateFunc(ctx, systemPrompt, userPrompt)
	}

	return `{"table": "crca6_tickets"}`, nil
}

func (m *MockService) Configure(config Config) error {
	if m.configureFunc != nil {
		return m.configureFunc(config)
	}
	return nil
}

func (m *MockService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.callCount
}

func newTestManager(config ManagerConfig) *Manager {
	m := NewManager(config)
	m.SetLogger(logging.NewNop())

	return m
}

func TestManagerRegisterProvider(t *testing.T) {
	manager := newTestManager(ManagerConfig{DefaultProvider: "test-provider"})

	tests := []struct {
		name         string
		providerName string
		service      Service
		wantErr      bool
	}{
		{name: "valid provider", providerName: "test-provider", service: &MockService{}},
		{name: "empty name", providerName: "", service: &MockService{}, wantErr: true},
		{name: "nil service", providerName: "test-provider", service: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.RegisterProvider(tt.providerName, tt.service)
			if tt.wantErr {
				assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
				return
			}

			require.NoError(t, err)
			assert.True(t, manager.IsProviderRegistered(tt.providerName))
		})
	}
}

func TestManagerConfigure(t *testing.T) {
	var got Config

	manager := newTestManager(ManagerConfig{})
	require.NoError(t, manager.RegisterProvider("test-provider", &MockService{
		configureFunc: func(config Config) error {
			got = config
			return nil
		},
	}))

	require.NoError(t, manager.Configure(Config{Provider: "test-provider", Model: "m"}))
	assert.Equal(t, "m", got.Model)

	err := manager.Configure(Config{Provider: "unknown-provider"})
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestManagerGenerateDefaultProvider(t *testing.T) {
	var gotSystem, gotUser string

	manager := newTestManager(ManagerConfig{DefaultProvider: "primary"})
	require.NoError(t, manager.RegisterProvider("primary", &MockService{
		generateFunc: func(_ context.Context, systemPrompt, userPrompt string) (string, error) {
			gotSystem, gotUser = systemPrompt, userPrompt
			return "ok", nil
		},
	}))

	text, err := manager.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "system", gotSystem)
	assert.Equal(t, "user", gotUser)
}

func TestManagerGenerateWithFallback(t *testing.T) {
	manager := newTestManager(ManagerConfig{
		DefaultProvider:   "primary",
		FallbackProviders: []string{"secondary"},
		RetryAttempts:     1,
		RetryDelay:        10 * time.Millisecond,
		Timeout:           5 * time.Second,
	})

	primary := &MockService{shouldFail: true}
	secondary := &MockService{}

	require.NoError(t, manager.RegisterProvider("primary", primary))
	require.NoError(t, manager.RegisterProvider("secondary", secondary))

	text, err := manager.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, `{"table": "crca6_tickets"}`, text)

	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestManagerGenerateRetrySucceeds(t *testing.T) {
	manager := newTestManager(ManagerConfig{
		DefaultProvider: "primary",
		RetryAttempts:   2,
		RetryDelay:      time.Millisecond,
	})

	primary := &MockService{failAfterCalls: 2}
	require.NoError(t, manager.RegisterProvider("primary", primary))

	_, err := manager.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, 3, primary.Calls())
}

func TestManagerGenerateNoRetryOnClientError(t *testing.T) {
	manager := newTestManager(ManagerConfig{
		DefaultProvider: "primary",
		RetryAttempts:   3,
		RetryDelay:      time.Millisecond,
	})

	badRequest := errors.NewTransportError("gemini", http.StatusBadRequest, "invalid argument")
	primary := &MockService{shouldFail: true, failWith: badRequest}
	require.NoError(t, manager.RegisterProvider("primary", primary))

	_, err := manager.Generate(context.Background(), "s", "u")
	assert.Same(t, badRequest, err)
	assert.Equal(t, 1, primary.Calls())
}

func TestManagerGenerateRetriesRateLimit(t *testing.T) {
	manager := newTestManager(ManagerConfig{
		DefaultProvider: "primary",
		RetryAttempts:   2,
		RetryDelay:      time.Millisecond,
	})

	limited := errors.NewTransportError("gemini", http.StatusTooManyRequests, "slow down")
	primary := &MockService{shouldFail: true, failWith: limited}
	require.NoError(t, manager.RegisterProvider("primary", primary))

	_, err := manager.Generate(context.Background(), "s", "u")
	assert.True(t, errors.IsType(err, errors.ErrTypeTransport))
	assert.Equal(t, 3, primary.Calls())
}

func TestManagerGenerateAllFail(t *testing.T) {
	manager := newTestManager(ManagerConfig{
		DefaultProvider:   "primary",
		FallbackProviders: []string{"secondary", "primary", "missing"},
	})

	primary := &MockService{shouldFail: true}
	secondary := &MockService{shouldFail: true, failWith: stderrors.New("secondary down")}

	require.NoError(t, manager.RegisterProvider("primary", primary))
	require.NoError(t, manager.RegisterProvider("secondary", secondary))

	_, err := manager.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, "secondary down", err.Error())

	// duplicates in the fallback list are tried once
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestManagerGenerateNoProviders(t *testing.T) {
	manager := newTestManager(ManagerConfig{DefaultProvider: "primary"})

	_, err := manager.Generate(context.Background(), "s", "u")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestManagerGenerateTimeout(t *testing.T) {
	manager := newTestManager(ManagerConfig{
		DefaultProvider: "slow",
		RetryAttempts:   5,
		RetryDelay:      time.Millisecond,
		Timeout:         50 * time.Millisecond,
	})

	slow := &MockService{
		generateFunc: func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	require.NoError(t, manager.RegisterProvider("slow", slow))

	_, err := manager.Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, slow.Calls())
}

func TestManagerGetAvailableProviders(t *testing.T) {
	manager := newTestManager(ManagerConfig{})
	require.NoError(t, manager.RegisterProvider("openai", &MockService{}))
	require.NoError(t, manager.RegisterProvider("gemini", &MockService{}))

	assert.Equal(t, []string{"gemini", "openai"}, manager.GetAvailableProviders())
	assert.False(t, manager.IsProviderRegistered("anthropic"))
}
