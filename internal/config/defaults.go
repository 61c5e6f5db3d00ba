package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Bank: BankConfig{
			Backend: "http",
			URL:     "http://localhost:8080/payments",
			Timeout: 5 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			SlidingWindowSize:    10,
			MinimumCalls:         5,
			FailureRateThreshold: 50,
			OpenTimeout:          10 * time.Second,
			HalfOpenMaxCalls:     3,
		},
		Idempotency: IdempotencyConfig{
			Backend:    "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 100000,
			RedisAddr:  "localhost:6379",
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "payment-gateway",
		},
		Audit: AuditConfig{
			Backend:        "log",
			KafkaBrokers:   []string{"localhost:9092"},
			KafkaTopic:     "payments.audit",
			File:           "audit.jsonl",
			PublishTimeout: 2 * time.Second,
		},
	}
}

// setDefaults registers every scalar key so environment overrides are seen
// by Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.addr", d.Server.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("bank.backend", d.Bank.Backend)
	v.SetDefault("bank.url", d.Bank.URL)
	v.SetDefault("bank.timeout", d.Bank.Timeout)

	v.SetDefault("circuit_breaker.sliding_window_size", d.CircuitBreaker.SlidingWindowSize)
	v.SetDefault("circuit_breaker.minimum_calls", d.CircuitBreaker.MinimumCalls)
	v.SetDefault("circuit_breaker.failure_rate_threshold", d.CircuitBreaker.FailureRateThreshold)
	v.SetDefault("circuit_breaker.open_timeout", d.CircuitBreaker.OpenTimeout)
	v.SetDefault("circuit_breaker.half_open_max_calls", d.CircuitBreaker.HalfOpenMaxCalls)

	v.SetDefault("idempotency.backend", d.Idempotency.Backend)
	v.SetDefault("idempotency.ttl", d.Idempotency.TTL)
	v.SetDefault("idempotency.max_entries", d.Idempotency.MaxEntries)
	v.SetDefault("idempotency.redis_addr", d.Idempotency.RedisAddr)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dsn", d.Store.DSN)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("audit.backend", d.Audit.Backend)
	v.SetDefault("audit.kafka_brokers", d.Audit.KafkaBrokers)
	v.SetDefault("audit.kafka_topic", d.Audit.KafkaTopic)
	v.SetDefault("audit.file", d.Audit.File)
	v.SetDefault("audit.publish_timeout", d.Audit.PublishTimeout)
}
