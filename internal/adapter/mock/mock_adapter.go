package mock

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/yourorg/payment-gateway/internal/adapter"
)

// MockAdapter is a mock implementation of the Authorizer interface for testing
// and local runs without a bank simulator.
type MockAdapter struct {
	Name          string
	AuthorizeFunc func(ctx context.Context, req adapter.AuthorizationRequest) (*adapter.Verdict, error)

	calls atomic.Int64
}

// NewMockAdapter creates a new MockAdapter.
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{Name: name}
}

// Authorize calls AuthorizeFunc if defined, otherwise authorizes every request
// with a fresh authorization code.
func (m *MockAdapter) Authorize(ctx context.Context, req adapter.AuthorizationRequest) (*adapter.Verdict, error) {
	m.calls.Add(1)
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, req)
	}
	return &adapter.Verdict{Authorized: true, AuthorizationCode: uuid.NewString()}, nil
}

// GetName implements the Authorizer interface.
func (m *MockAdapter) GetName() string {
	return m.Name
}

// Calls returns how many times Authorize was invoked.
func (m *MockAdapter) Calls() int64 {
	return m.calls.Load()
}
