package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Pending query policies
const (
	PendingBuffer = "buffer"
	PendingReject = "reject"
)

// Config holds all configuration for the store worker
type Config struct {
	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"triplestore-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	InboundStream  string        `env:"INBOUND_STREAM" envDefault:"triplestore.in"`
	ConsumerGroup  string        `env:"CONSUMER_GROUP" envDefault:"triplestore-workers"`
	OutboundStream string        `env:"OUTBOUND_STREAM" envDefault:"triplestore.out"`
	BlockTime      time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// Acquisition configuration
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	FetchMaxBytes int64         `env:"FETCH_MAX_BYTES" envDefault:"268435456"`

	// Query configuration (0 disables the deadline)
	QueryTimeout  time.Duration `env:"QUERY_TIMEOUT" envDefault:"0s"`
	PendingPolicy string        `env:"PENDING_POLICY" envDefault:"buffer"`
	MaxPending    int           `env:"MAX_PENDING" envDefault:"1024"`

	// Bootstrap load, sent to the worker as its first config message when set
	SourceURL         string `env:"SOURCE_URL"`
	SourceFormat      string `env:"SOURCE_FORMAT" envDefault:"text/turtle"`
	BaseIRI           string `env:"BASE_IRI"`
	GraphName         string `env:"GRAPH_NAME"`
	UnionDefaultGraph string `env:"UNION_DEFAULT_GRAPH" envDefault:"false"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8083"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.InboundStream == "" {
		return fmt.Errorf("INBOUND_STREAM is required")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.OutboundStream == "" {
		return fmt.Errorf("OUTBOUND_STREAM is required")
	}

	if c.InboundStream == c.OutboundStream {
		return fmt.Errorf("INBOUND_STREAM and OUTBOUND_STREAM must differ")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}

	if c.FetchMaxBytes <= 0 {
		return fmt.Errorf("FETCH_MAX_BYTES must be positive")
	}

	if c.QueryTimeout < 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be non-negative")
	}

	if c.PendingPolicy != PendingBuffer && c.PendingPolicy != PendingReject {
		return fmt.Errorf("PENDING_POLICY must be one of: buffer, reject")
	}

	if c.MaxPending < 0 {
		return fmt.Errorf("MAX_PENDING must be non-negative")
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// HasBootstrapLoad reports whether a load source was configured through the environment
func (c *Config) HasBootstrapLoad() bool {
	return c.SourceURL != ""
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, RedisAddr=%s, RedisDB=%d, InboundStream=%s, ConsumerGroup=%s, "+
			"OutboundStream=%s, FetchTimeout=%s, QueryTimeout=%s, PendingPolicy=%s, MaxPending=%d, "+
			"SourceURL=%s, HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.InboundStream,
		c.ConsumerGroup,
		c.OutboundStream,
		c.FetchTimeout,
		c.QueryTimeout,
		c.PendingPolicy,
		c.MaxPending,
		c.SourceURL,
		c.HealthPort,
		c.LogLevel,
	)
}
