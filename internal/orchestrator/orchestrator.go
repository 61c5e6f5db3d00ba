// Package orchestrator runs a payment through its lifecycle: idempotency
// reservation, a PENDING record written before the authorizer is called, the
// gated authorizer call itself, and either finalization or compensation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/audit"
	"github.com/yourorg/payment-gateway/internal/idempotency"
	"github.com/yourorg/payment-gateway/internal/payment"
	"github.com/yourorg/payment-gateway/internal/policy"
	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
	"github.com/yourorg/payment-gateway/internal/store"
)

// Outcome labels for the payments counter.
const (
	OutcomeAuthorized  = "authorized"
	OutcomeDeclined    = "declined"
	OutcomeCompensated = "compensated"
	OutcomeReplayed    = "replayed"
	OutcomeInProgress  = "in_progress"
	OutcomeError       = "error"
)

var (
	paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payment_gateway",
		Name:      "payments_total",
		Help:      "Payment creation requests by outcome.",
	}, []string{"outcome"})
	processDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payment_gateway",
		Name:      "process_duration_seconds",
		Help:      "End-to-end latency of payment creation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)

// GetPaymentsTotal exposes the outcome counter for tests.
func GetPaymentsTotal() *prometheus.CounterVec { return paymentsTotal }

// GetProcessDuration exposes the latency histogram for tests.
func GetProcessDuration() *prometheus.HistogramVec { return processDuration }

// AuthorizerInterface defines the contract for the gated downstream call.
// *router.Router implements it.
type AuthorizerInterface interface {
	Authorize(ctx context.Context, req payment.Request) (*adapter.Verdict, error)
}

// PolicyInterface decides what happens to a key after a downstream failure.
type PolicyInterface interface {
	Evaluate(fc policy.FailureContext) (policy.Decision, error)
}

// Orchestrator wires the idempotency cache, the record store and the
// authorizer together.
type Orchestrator struct {
	idempotency  idempotency.Store
	records      store.RecordStore
	authorizer   AuthorizerInterface
	policy       PolicyInterface
	audit        audit.Publisher
	auditTimeout time.Duration // zero leaves publishes unbounded
	log          *slog.Logger
	newID        func() uuid.UUID
}

// DefaultAuditTimeout bounds a single audit publish on the request path.
const DefaultAuditTimeout = 2 * time.Second

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithPolicy sets the failure policy. Without one every failure is terminal.
func WithPolicy(p PolicyInterface) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(o *Orchestrator) { o.audit = p }
}

// WithAuditTimeout bounds how long one audit publish may hold up a request.
func WithAuditTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.auditTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	idem idempotency.Store,
	records store.RecordStore,
	authorizer AuthorizerInterface,
	opts ...Option,
) *Orchestrator {
	if idem == nil {
		panic("idempotency store cannot be nil")
	}
	if records == nil {
		panic("record store cannot be nil")
	}
	if authorizer == nil {
		panic("authorizer cannot be nil")
	}
	o := &Orchestrator{
		idempotency:  idem,
		records:      records,
		authorizer:   authorizer,
		audit:        audit.NopPublisher{},
		auditTimeout: DefaultAuditTimeout,
		log:          slog.Default(),
		newID:        uuid.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process creates a payment for key. A completed key replays its cached
// response without side effects; a key another request is still working on
// yields idempotency.ErrInProgress. Downstream failures never surface as
// errors: the pending record is removed and a Declined response returned.
// Only failures of the idempotency cache or of the initial write are returned.
func (o *Orchestrator) Process(ctx context.Context, key string, req payment.Request) (payment.CreateResponse, error) {
	start := time.Now()
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "Orchestrator.Process")
	defer span.End()

	resp, outcome, err := o.process(ctx, key, req)

	paymentsTotal.WithLabelValues(outcome).Inc()
	processDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("payment.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (o *Orchestrator) process(ctx context.Context, key string, req payment.Request) (payment.CreateResponse, string, error) {
	log := o.log.With("idempotency_key", key)
	log.InfoContext(ctx, "payment processing requested")

	// Reservation and everything after it run detached from cancellation of
	// the inbound request.
	work := context.WithoutCancel(ctx)

	cached, err := o.idempotency.Reserve(work, key)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		log.WarnContext(ctx, "payment already in progress")
		return payment.CreateResponse{}, OutcomeInProgress, err
	case err != nil:
		log.ErrorContext(ctx, "idempotency reservation failed", "err", err)
		return payment.CreateResponse{}, OutcomeError, fmt.Errorf("orchestrator: reserve key: %w", err)
	case cached != nil:
		log.InfoContext(ctx, "payment duplicate detected", "payment_id", cached.ID)
		trace.SpanFromContext(ctx).AddEvent("idempotent replay")
		return *cached, OutcomeReplayed, nil
	}

	rec, err := payment.NewPendingRecord(o.newID(), req)
	if err != nil {
		o.release(work, log, key)
		return payment.CreateResponse{}, OutcomeError, fmt.Errorf("orchestrator: build pending record: %w", err)
	}
	log = log.With("payment_id", rec.ID)

	if err := o.records.Add(work, rec); err != nil {
		log.ErrorContext(work, "pending record write failed", "err", err)
		o.release(work, log, key)
		return payment.CreateResponse{}, OutcomeError, fmt.Errorf("orchestrator: add pending record: %w", err)
	}
	trace.SpanFromContext(work).AddEvent("pending record added")
	o.publish(work, log, audit.NewEvent(audit.TypePending, key, rec, ""))

	verdict, err := o.authorizer.Authorize(work, req)
	if err != nil {
		return o.compensate(work, log, key, rec, classify(err), err), OutcomeCompensated, nil
	}

	rec = applyVerdict(rec, verdict)
	if err := o.records.Update(work, rec); err != nil {
		return o.compensate(work, log, key, rec, policy.ReasonPersistError, err), OutcomeCompensated, nil
	}

	resp := payment.ToCreateResponse(rec)
	if err := o.idempotency.Complete(work, key, resp); err != nil {
		log.ErrorContext(work, "idempotency completion failed", "err", err)
	}

	eventType, outcome := audit.TypeDeclined, OutcomeDeclined
	if rec.Status == payment.StatusAuthorized {
		eventType, outcome = audit.TypeAuthorized, OutcomeAuthorized
	}
	trace.SpanFromContext(work).AddEvent("record finalized", trace.WithAttributes(attribute.String("status", string(rec.Status))))
	o.publish(work, log, audit.NewEvent(eventType, key, rec, ""))
	log.InfoContext(work, "payment processed",
		"status", rec.Status,
		"amount", rec.Amount,
		"currency", rec.Currency,
		"card_last_four", rec.CardNumberLastFour,
	)
	return resp, outcome, nil
}

// compensate removes the pending record, answers Declined and lets the
// failure policy decide whether that answer is final for key.
func (o *Orchestrator) compensate(ctx context.Context, log *slog.Logger, key string, rec payment.Record, reason string, cause error) payment.CreateResponse {
	log.ErrorContext(ctx, "payment failed", "reason", reason, "err", cause)

	if err := o.records.Remove(ctx, rec.ID); err != nil {
		log.ErrorContext(ctx, "compensation remove failed", "err", err)
	}
	trace.SpanFromContext(ctx).AddEvent("pending record removed", trace.WithAttributes(attribute.String("reason", reason)))

	rec.Status = payment.StatusDeclined
	resp := payment.ToCreateResponse(rec)

	decision := policy.DefaultDecision
	if o.policy != nil {
		d, err := o.policy.Evaluate(policy.FailureContext{
			Reason:     reason,
			Amount:     rec.Amount,
			Currency:   string(rec.Currency),
			Authorizer: o.authorizerName(),
		})
		if err != nil {
			log.ErrorContext(ctx, "failure policy evaluation failed, using default", "err", err)
		} else {
			decision = d
		}
	}

	if decision.Terminal {
		if err := o.idempotency.Complete(ctx, key, resp); err != nil {
			log.ErrorContext(ctx, "idempotency completion failed", "err", err)
		}
	} else {
		log.InfoContext(ctx, "releasing key for retry", "rule", decision.RuleID)
		o.release(ctx, log, key)
	}

	o.publish(ctx, log, audit.NewEvent(audit.TypeCompensated, key, rec, reason))
	return resp
}

// authorizerName is empty unless the authorizer can name itself.
func (o *Orchestrator) authorizerName() string {
	if n, ok := o.authorizer.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}

func (o *Orchestrator) release(ctx context.Context, log *slog.Logger, key string) {
	if err := o.idempotency.Release(ctx, key); err != nil {
		log.ErrorContext(ctx, "idempotency release failed", "err", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, log *slog.Logger, e audit.Event) {
	if o.auditTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.auditTimeout)
		defer cancel()
	}
	if err := o.audit.Publish(ctx, e); err != nil {
		log.WarnContext(ctx, "audit publish failed", "type", e.Type, "err", err)
	}
}

// Get returns the finalized payment with id. Unknown ids and payments still
// awaiting the authorizer both yield store.ErrNotFound.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (payment.Response, error) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "Orchestrator.Get")
	defer span.End()

	rec, err := o.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			o.log.WarnContext(ctx, "payment retrieval failed", "payment_id", id, "reason", "not_found")
		}
		return payment.Response{}, err
	}
	if !rec.Status.Terminal() {
		o.log.WarnContext(ctx, "payment retrieval failed", "payment_id", id, "reason", "pending")
		return payment.Response{}, store.ErrNotFound
	}
	return payment.ToResponse(rec), nil
}

func applyVerdict(rec payment.Record, v *adapter.Verdict) payment.Record {
	if v == nil {
		rec.Status = payment.StatusDeclined
		return rec
	}
	authorized := v.Authorized
	rec.Authorized = &authorized
	rec.AuthorizationCode = v.AuthorizationCode
	if v.Authorized {
		rec.Status = payment.StatusAuthorized
	} else {
		rec.Status = payment.StatusDeclined
	}
	return rec
}

func classify(err error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return policy.ReasonCircuitOpen
	case errors.Is(err, adapter.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return policy.ReasonTimeout
	default:
		return policy.ReasonAuthorizerError
	}
}
