// Package config loads service configuration from an optional YAML file plus
// CHAINTRACE_* environment overrides, with defaults suitable for local
// development. main stays lean; everything it wires comes from here.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Rule source modes.
const (
	RuleSourceYAML     = "yaml"
	RuleSourcePostgres = "postgres"
)

// Ledger modes.
const (
	LedgerKafka  = "kafka"
	LedgerMemory = "memory"
)

// Config is the full service configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Rules    RulesConfig    `mapstructure:"rules"`
	CacheTTL CacheTTLConfig `mapstructure:"cache_ttl"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RedisConfig configures the shared cache connection. An empty URL selects
// the in-memory cache adapter (single-instance deployments, tests).
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig configures the compliance ledger producer. Empty brokers select
// the in-memory ledger (dev mode).
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	Partitions    int32         `mapstructure:"partitions"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

// RulesConfig selects and configures the compliance rule source.
type RulesConfig struct {
	Source string `mapstructure:"source"` // yaml | postgres
	Path   string `mapstructure:"path"`   // rule pack file, source=yaml
	DSN    string `mapstructure:"dsn"`    // connection string, source=postgres
}

// CacheTTLConfig holds the two cache retention windows. Rules are re-read
// from the source hourly; per-product sequence state outlives a working day.
type CacheTTLConfig struct {
	Rules time.Duration `mapstructure:"rules"`
	State time.Duration `mapstructure:"state"`
}

// Load reads configuration from the given file (optional, "" skips the file)
// and the environment, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "compliance.audit")
	v.SetDefault("kafka.partitions", 6)
	v.SetDefault("kafka.submit_timeout", 10*time.Second)
	v.SetDefault("rules.source", RuleSourceYAML)
	v.SetDefault("rules.path", "rules/compliance_rules.yaml")
	v.SetDefault("rules.dsn", "")
	v.SetDefault("cache_ttl.rules", time.Hour)
	v.SetDefault("cache_ttl.state", 24*time.Hour)

	v.SetEnvPrefix("CHAINTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Rules.Source {
	case RuleSourceYAML:
		if c.Rules.Path == "" {
			return fmt.Errorf("rules.path is required when rules.source is yaml")
		}
	case RuleSourcePostgres:
		if c.Rules.DSN == "" {
			return fmt.Errorf("rules.dsn is required when rules.source is postgres")
		}
	default:
		return fmt.Errorf("unknown rules.source %q", c.Rules.Source)
	}

	if c.CacheTTL.Rules <= 0 || c.CacheTTL.State <= 0 {
		return fmt.Errorf("cache_ttl values must be positive")
	}
	return nil
}

// LedgerMode reports which ledger client main should wire.
func (c *Config) LedgerMode() string {
	if len(c.Kafka.Brokers) == 0 {
		return LedgerMemory
	}
	return LedgerKafka
}
