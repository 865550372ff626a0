package testutil

import (
	"context"
	"sync"
)

// OracleCall records one Generate invocation
type OracleCall struct {
	System string
	User   string
}

// MockOracle is a scripted generation oracle. Responses are returned in
// order; the last response repeats once the script is exhausted.
type MockOracle struct {
	mu sync.Mutex

	responses []string
	err       error
	calls     []OracleCall
}

// MockOracleOption is a functional option for configuring MockOracle
type MockOracleOption func(*MockOracle)

// WithResponses sets the canned oracle outputs
func WithResponses(responses ...string) MockOracleOption {
	return func(m *MockOracle) {
		m.responses = responses
	}
}

// WithOracleError makes every call fail with err
func WithOracleError(err error) MockOracleOption {
	return func(m *MockOracle) {
		m.err = err
	}
}

// NewMockOracle creates a new mock oracle with the given options
func NewMockOracle(opts ...MockOracleOption) *MockOracle {
	mock := &MockOracle{}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// Generate returns the next scripted response
func (m *MockOracle) Generate(_ context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, OracleCall{System: system, User: user})

	if m.err != nil {
		return "", m.err
	}

	if len(m.responses) == 0 {
		return "", nil
	}

	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}

	return m.responses[idx], nil
}

// Calls returns a copy of the recorded calls
func (m *MockOracle) Calls() []OracleCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]OracleCall(nil), m.calls...)
}

// CallCount returns the number of Generate calls
func (m *MockOracle) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}
