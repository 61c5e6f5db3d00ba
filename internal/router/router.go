// Package router sends authorization requests through a call gate to the
// payment processor and feeds each outcome back into the gate.
package router

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/payment"
	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
)

// Gate decides whether a call to a named downstream may proceed and learns
// from the outcome. *circuitbreaker.CircuitBreaker implements it.
type Gate interface {
	Acquire(name string) (circuitbreaker.Permit, bool)
	Success(p circuitbreaker.Permit)
	Failure(p circuitbreaker.Permit)
}

// PaymentProcessor performs the downstream authorization call.
type PaymentProcessor interface {
	Process(ctx context.Context, req payment.Request) (*adapter.Verdict, error)
	Name() string
}

// Router gates calls to a single authorizer.
type Router struct {
	processor PaymentProcessor
	gate      Gate
}

// NewRouter creates a new Router.
func NewRouter(p PaymentProcessor, gate Gate) *Router {
	if p == nil {
		panic("processor cannot be nil")
	}
	if gate == nil {
		panic("gate cannot be nil")
	}
	return &Router{
		processor: p,
		gate:      gate,
	}
}

// Name returns the name of the gated authorizer.
func (r *Router) Name() string {
	return r.processor.Name()
}

// Authorize runs one authorization through the gate. A rejected call returns
// an error wrapping circuitbreaker.ErrOpen and never reaches the processor.
// Errors and panics from the processor count as failures; any verdict,
// including a missing one, counts as a success.
func (r *Router) Authorize(ctx context.Context, req payment.Request) (verdict *adapter.Verdict, err error) {
	name := r.processor.Name()

	ctx, span := otel.Tracer("router").Start(ctx, "Router.Authorize",
		trace.WithAttributes(attribute.String("authorizer", name)))
	defer span.End()

	permit, ok := r.gate.Acquire(name)
	if !ok {
		span.SetStatus(codes.Error, "circuit open")
		return nil, fmt.Errorf("router: %s: %w", name, circuitbreaker.ErrOpen)
	}

	defer func() {
		if rec := recover(); rec != nil {
			verdict = nil
			err = fmt.Errorf("router: authorizer %s panicked: %v: %w", name, rec, adapter.ErrUnavailable)
			r.gate.Failure(permit)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	verdict, err = r.processor.Process(ctx, req)
	if err != nil {
		r.gate.Failure(permit)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r.gate.Success(permit)
	span.SetAttributes(attribute.Bool("authorized", verdict != nil && verdict.Authorized))
	return verdict, nil
}
