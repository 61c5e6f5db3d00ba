// Package adapter defines the interface to the external authorizer.
// Implementations handle the provider-specific call, including serialization
// and error mapping, and normalize the outcome into a Verdict.
package adapter

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable wraps transport failures and non-2xx answers from the authorizer.
	ErrUnavailable = errors.New("adapter: authorizer unavailable")
	// ErrTimeout wraps calls that ran out of time.
	ErrTimeout = errors.New("adapter: authorizer timed out")
)

// AuthorizationRequest carries the card details forwarded to the authorizer.
type AuthorizationRequest struct {
	CardNumber string
	ExpiryDate string // MM/YYYY
	Currency   string
	Amount     int64
	CVV        string
}

// Verdict is the authorizer's answer for a single request.
type Verdict struct {
	Authorized        bool
	AuthorizationCode string
}

// Authorizer is implemented by each authorization backend.
type Authorizer interface {
	// Authorize performs one synchronous authorization call. A nil verdict
	// with a nil error means the authorizer answered without a verdict.
	Authorize(ctx context.Context, req AuthorizationRequest) (*Verdict, error)

	// GetName returns the name of the authorizer (e.g., "bank").
	GetName() string
}
