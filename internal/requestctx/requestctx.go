// Package requestctx carries per-request metadata through a context.Context
// so that log lines emitted deep in the call chain can be correlated with
// the inbound HTTP request.
package requestctx

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-Id"

type ctxKey struct{}

// RequestContext carries only cross-cutting concerns needed for correlation.
type RequestContext struct {
	RequestID      string    // Caller supplied or generated
	IdempotencyKey string    // Empty for reads
	ReceivedAt     time.Time // When the gateway accepted the request
}

// New creates a RequestContext. A blank requestID is replaced by a fresh UUID.
func New(requestID string, now time.Time) RequestContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return RequestContext{
		RequestID:  requestID,
		ReceivedAt: now,
	}
}

// With returns a child of ctx carrying rc.
func With(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// WithIdempotencyKey records key on the RequestContext already in ctx, or on
// a fresh one if ctx has none.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	rc, ok := From(ctx)
	if !ok {
		rc = New("", time.Now())
	}
	rc.IdempotencyKey = key
	return With(ctx, rc)
}

// From extracts the RequestContext from ctx.
func From(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(ctxKey{}).(RequestContext)
	return rc, ok
}

// Elapsed reports time spent since the request was received.
func (rc RequestContext) Elapsed(now time.Time) time.Duration {
	if rc.ReceivedAt.IsZero() {
		return 0
	}
	return now.Sub(rc.ReceivedAt)
}
