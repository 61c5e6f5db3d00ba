package config

import "time"

// Config represents the full gateway configuration
type Config struct {
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
	Bank           BankConfig           `yaml:"bank" mapstructure:"bank"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Idempotency    IdempotencyConfig    `yaml:"idempotency" mapstructure:"idempotency"`
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Tracing        TracingConfig        `yaml:"tracing" mapstructure:"tracing"`
	Audit          AuditConfig          `yaml:"audit" mapstructure:"audit"`
	Policy         PolicyConfig         `yaml:"policy" mapstructure:"policy"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, text
}

// BankConfig configures the acquiring bank client
type BankConfig struct {
	// Backend is "http" for the real bank or "mock" to authorize everything locally.
	Backend string        `yaml:"backend" mapstructure:"backend"`
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CircuitBreakerConfig configures the call gate in front of the bank
type CircuitBreakerConfig struct {
	SlidingWindowSize    int           `yaml:"sliding_window_size" mapstructure:"sliding_window_size"`
	MinimumCalls         int           `yaml:"minimum_calls" mapstructure:"minimum_calls"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	OpenTimeout          time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
	HalfOpenMaxCalls     int           `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls"`
}

// IdempotencyConfig configures the idempotency cache
type IdempotencyConfig struct {
	Backend    string        `yaml:"backend" mapstructure:"backend"` // memory, redis
	TTL        time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxEntries int           `yaml:"max_entries" mapstructure:"max_entries"`
	RedisAddr  string        `yaml:"redis_addr" mapstructure:"redis_addr"`
}

// StoreConfig configures the payment record store
type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // memory, sqlite, postgres
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// TracingConfig configures OpenTelemetry
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// AuditConfig configures where lifecycle events go
type AuditConfig struct {
	Backend        string        `yaml:"backend" mapstructure:"backend"` // log, kafka, jsonl, nop
	KafkaBrokers   []string      `yaml:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic     string        `yaml:"kafka_topic" mapstructure:"kafka_topic"`
	File           string        `yaml:"file" mapstructure:"file"`                       // jsonl output path
	PublishTimeout time.Duration `yaml:"publish_timeout" mapstructure:"publish_timeout"` // per event, on the request path
}

// PolicyConfig holds the failure policy rules
type PolicyConfig struct {
	Rules []PolicyRule `yaml:"rules" mapstructure:"rules"`
}

// PolicyRule is one failure policy rule
type PolicyRule struct {
	Name       string `yaml:"name" mapstructure:"name"`
	Expression string `yaml:"expression" mapstructure:"expression"`
	Priority   int    `yaml:"priority" mapstructure:"priority"`
	Terminal   bool   `yaml:"terminal" mapstructure:"terminal"`
}
