// Package config loads gateway configuration from defaults, an optional
// YAML file and PAYMENTS_-prefixed environment variables, in increasing
// order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PAYMENTS_BANK_URL.
const EnvPrefix = "PAYMENTS"

// Load reads configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and unusable values.
func (c *Config) Validate() error {
	if err := oneOf("log.format", c.Log.Format, "json", "text"); err != nil {
		return err
	}
	if err := oneOf("bank.backend", c.Bank.Backend, "http", "mock"); err != nil {
		return err
	}
	if err := oneOf("idempotency.backend", c.Idempotency.Backend, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("store.backend", c.Store.Backend, "memory", "sqlite", "postgres"); err != nil {
		return err
	}
	if err := oneOf("audit.backend", c.Audit.Backend, "log", "kafka", "jsonl", "nop"); err != nil {
		return err
	}
	if c.Bank.Timeout <= 0 {
		return fmt.Errorf("config: bank.timeout must be positive, got %s", c.Bank.Timeout)
	}
	if c.Audit.PublishTimeout <= 0 {
		return fmt.Errorf("config: audit.publish_timeout must be positive, got %s", c.Audit.PublishTimeout)
	}
	if c.Store.Backend != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn is required for the %s backend", c.Store.Backend)
	}
	if c.Audit.Backend == "kafka" && (len(c.Audit.KafkaBrokers) == 0 || c.Audit.KafkaTopic == "") {
		return fmt.Errorf("config: audit.kafka_brokers and audit.kafka_topic are required for the kafka backend")
	}
	for i, r := range c.Policy.Rules {
		if r.Name == "" {
			return fmt.Errorf("config: policy.rules[%d] has no name", i)
		}
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("config: %s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
