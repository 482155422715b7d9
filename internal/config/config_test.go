package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "triplestore-1", cfg.WorkerID)
	assert.Equal(t, "triplestore.in", cfg.InboundStream)
	assert.Equal(t, "triplestore.out", cfg.OutboundStream)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Duration(0), cfg.QueryTimeout)
	assert.Equal(t, PendingBuffer, cfg.PendingPolicy)
	assert.False(t, cfg.HasBootstrapLoad())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("WORKER_ID", "store-7")
	t.Setenv("PENDING_POLICY", "reject")
	t.Setenv("QUERY_TIMEOUT", "250ms")
	t.Setenv("SOURCE_URL", "data.ttl")
	t.Setenv("GRAPH_NAME", "http://example.org/g1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "store-7", cfg.WorkerID)
	assert.Equal(t, PendingReject, cfg.PendingPolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.QueryTimeout)
	assert.True(t, cfg.HasBootstrapLoad())
	assert.Equal(t, "text/turtle", cfg.SourceFormat)
}

func TestLoad_InvalidPolicy(t *testing.T) {
	t.Setenv("PENDING_POLICY", "drop")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PENDING_POLICY")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WorkerID:       "w",
			RedisAddr:      "localhost:6379",
			InboundStream:  "in",
			ConsumerGroup:  "g",
			OutboundStream: "out",
			BlockTime:      time.Second,
			FetchTimeout:   time.Second,
			FetchMaxBytes:  1024,
			PendingPolicy:  PendingBuffer,
			HealthPort:     8083,
			LogLevel:       "info",
		}
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"same streams":       func(c *Config) { c.OutboundStream = c.InboundStream },
		"negative timeout":   func(c *Config) { c.QueryTimeout = -time.Second },
		"zero fetch timeout": func(c *Config) { c.FetchTimeout = 0 },
		"bad port":           func(c *Config) { c.HealthPort = 70000 },
		"bad level":          func(c *Config) { c.LogLevel = "trace" },
		"negative pending":   func(c *Config) { c.MaxPending = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestString_OmitsPassword(t *testing.T) {
	cfg := &Config{RedisPassword: "s3cret", WorkerID: "w"}
	assert.NotContains(t, cfg.String(), "s3cret")
	assert.Contains(t, cfg.String(), "WorkerID=w")
}
