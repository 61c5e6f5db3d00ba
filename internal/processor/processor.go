// Package processor turns a validated payment request into a single call on
// the configured Authorizer and times that call.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/payment"
)

var authorizerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "payment_gateway",
	Name:      "authorizer_duration_seconds",
	Help:      "Latency of calls to the external authorizer.",
	Buckets:   prometheus.DefBuckets,
}, []string{"authorizer", "outcome"})

// GetAuthorizerDuration exposes the latency histogram for tests.
func GetAuthorizerDuration() *prometheus.HistogramVec { return authorizerDuration }

// Processor wraps Authorizer calls.
type Processor struct {
	authorizer adapter.Authorizer
}

// NewProcessor creates a new Processor for the given authorizer.
func NewProcessor(a adapter.Authorizer) *Processor {
	if a == nil {
		panic("authorizer cannot be nil")
	}
	return &Processor{authorizer: a}
}

// Name returns the name of the wrapped authorizer.
func (p *Processor) Name() string {
	return p.authorizer.GetName()
}

// Process forwards req to the authorizer. A nil verdict with a nil error is
// passed through unchanged.
func (p *Processor) Process(ctx context.Context, req payment.Request) (*adapter.Verdict, error) {
	start := time.Now()
	verdict, err := p.authorizer.Authorize(ctx, ToAuthorizationRequest(req))
	authorizerDuration.WithLabelValues(p.authorizer.GetName(), outcomeLabel(verdict, err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("processor: authorizer %s failed: %w", p.authorizer.GetName(), err)
	}
	return verdict, nil
}

// ToAuthorizationRequest maps a payment request to the authorizer wire shape.
func ToAuthorizationRequest(req payment.Request) adapter.AuthorizationRequest {
	return adapter.AuthorizationRequest{
		CardNumber: req.CardNumber,
		ExpiryDate: req.ExpiryDate(),
		Currency:   string(req.Currency),
		Amount:     req.Amount,
		CVV:        req.CVV,
	}
}

func outcomeLabel(v *adapter.Verdict, err error) string {
	switch {
	case errors.Is(err, adapter.ErrTimeout):
		return "timeout"
	case err != nil:
		return "error"
	case v == nil:
		return "no_verdict"
	case v.Authorized:
		return "authorized"
	default:
		return "declined"
	}
}
