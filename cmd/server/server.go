package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yourorg/payment-gateway/internal/adapter"
	"github.com/yourorg/payment-gateway/internal/adapter/bank"
	adaptermock "github.com/yourorg/payment-gateway/internal/adapter/mock"
	"github.com/yourorg/payment-gateway/internal/audit"
	"github.com/yourorg/payment-gateway/internal/config"
	"github.com/yourorg/payment-gateway/internal/idempotency"
	idemredis "github.com/yourorg/payment-gateway/internal/idempotency/redis"
	"github.com/yourorg/payment-gateway/internal/orchestrator"
	"github.com/yourorg/payment-gateway/internal/policy"
	"github.com/yourorg/payment-gateway/internal/processor"
	"github.com/yourorg/payment-gateway/internal/router"
	"github.com/yourorg/payment-gateway/internal/router/circuitbreaker"
	"github.com/yourorg/payment-gateway/internal/store"
	"github.com/yourorg/payment-gateway/internal/store/postgres"
	"github.com/yourorg/payment-gateway/internal/store/sqlite"
)

// app holds the wired gateway and whatever must be closed on shutdown.
type app struct {
	orchestrator *orchestrator.Orchestrator
	breaker      *circuitbreaker.CircuitBreaker
	authorizer   adapter.Authorizer
	closers      []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildApp wires every collaborator selected by cfg.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}

	records, err := a.openRecordStore(ctx, cfg.Store, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	idem, err := a.openIdempotencyStore(ctx, cfg.Idempotency)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	publisher, err := a.openAuditPublisher(cfg.Audit, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	fp, err := newFailurePolicy(cfg.Policy)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.authorizer = newAuthorizer(cfg.Bank)
	a.breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		SlidingWindowSize:    cfg.CircuitBreaker.SlidingWindowSize,
		MinimumCalls:         cfg.CircuitBreaker.MinimumCalls,
		FailureRateThreshold: cfg.CircuitBreaker.FailureRateThreshold,
		OpenTimeout:          cfg.CircuitBreaker.OpenTimeout,
		HalfOpenMaxCalls:     cfg.CircuitBreaker.HalfOpenMaxCalls,
	})
	rtr := router.NewRouter(processor.NewProcessor(a.authorizer), a.breaker)

	a.orchestrator = orchestrator.NewOrchestrator(idem, records, rtr,
		orchestrator.WithPolicy(fp),
		orchestrator.WithAuditPublisher(publisher),
		orchestrator.WithAuditTimeout(cfg.Audit.PublishTimeout),
		orchestrator.WithLogger(log),
	)

	log.Info("gateway wired",
		"store", cfg.Store.Backend,
		"idempotency", cfg.Idempotency.Backend,
		"audit", cfg.Audit.Backend,
		"authorizer", a.authorizer.GetName(),
		"policy_rules", len(cfg.Policy.Rules),
	)
	return a, nil
}

func (a *app) openRecordStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (store.RecordStore, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return sqlite.NewRecordStore(db, log), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: connect: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return postgres.NewRepository(log, pool), nil
	default:
		return store.NewInMemoryRecordStore(), nil
	}
}

func (a *app) openIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig) (idempotency.Store, error) {
	if cfg.Backend != "redis" {
		return idempotency.NewMemoryStore(idempotency.Options{TTL: cfg.TTL, MaxEntries: cfg.MaxEntries}), nil
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.RedisAddr, err)
	}
	return idemredis.NewStore(rdb, cfg.TTL), nil
}

func (a *app) openAuditPublisher(cfg config.AuditConfig, log *slog.Logger) (audit.Publisher, error) {
	switch cfg.Backend {
	case "nop":
		return audit.NopPublisher{}, nil
	case "jsonl":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("audit: open %s: %w", cfg.File, err)
		}
		a.closers = append(a.closers, f.Close)
		return audit.NewJSONLinesPublisher(f), nil
	case "kafka":
		w := audit.NewKafkaWriter(cfg.KafkaBrokers)
		a.closers = append(a.closers, w.Close)
		return audit.NewKafkaPublisher(log, w, cfg.KafkaTopic), nil
	default:
		return audit.NewLogPublisher(log), nil
	}
}

func newAuthorizer(cfg config.BankConfig) adapter.Authorizer {
	if cfg.Backend == "mock" {
		return adaptermock.NewMockAdapter("mock-bank")
	}
	return bank.NewBankAdapter(cfg.URL, &http.Client{Timeout: cfg.Timeout})
}

func newFailurePolicy(cfg config.PolicyConfig) (*policy.FailurePolicy, error) {
	rules := make([]policy.Rule, len(cfg.Rules))
	for i, r := range cfg.Rules {
		rules[i] = policy.Rule{
			ID:         r.Name,
			Expression: r.Expression,
			Priority:   r.Priority,
			Terminal:   r.Terminal,
		}
	}
	return policy.NewFailurePolicy(rules)
}

// newEngine builds the HTTP surface. circuit may be nil.
func newEngine(svc PaymentService, validator BodyValidator, circuit func() string, log *slog.Logger, serviceName string) *gin.Engine {
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		requestContext(),
		accessLog(log),
	)

	h := &paymentHandler{service: svc, validator: validator, log: log}
	engine.POST("/payment", h.create)
	engine.GET("/payment/:id", h.get)

	engine.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if circuit != nil {
			body["circuit"] = circuit()
		}
		c.JSON(http.StatusOK, body)
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine
}

// circuitState reports the breaker state for the authorizer in health checks.
func (a *app) circuitState() string {
	return a.breaker.GetState(a.authorizer.GetName()).String()
}
