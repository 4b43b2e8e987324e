package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Validates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

// 每次调用返回独立副本
func TestDefaultConfig_Fresh(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	a.Log.OutputPaths[0] = "stderr"
	a.Delegation.MaxTimeout = time.Hour

	assert.Equal(t, []string{"stdout"}, b.Log.OutputPaths)
	assert.Equal(t, 5*time.Minute, b.Delegation.MaxTimeout)
}

func TestDefaultConfig_SingleProcess(t *testing.T) {
	cfg := DefaultConfig()

	d := cfg.Delegation
	assert.Equal(t, "local", d.Transport)
	assert.Equal(t, "memory", d.Store)
	assert.Equal(t, "memory", d.RateLimiter)
	assert.Empty(t, d.LogStore, "log store follows the delegation store")

	assert.False(t, cfg.Auth.Enabled)
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Empty(t, cfg.Mongo.URI)
}

func TestDefaultConfig_DelegationProtocol(t *testing.T) {
	d := DefaultConfig().Delegation

	assert.Equal(t, 30*time.Second, d.DefaultTimeout)
	assert.Equal(t, 5*time.Minute, d.MaxTimeout)
	assert.Equal(t, 1, d.DefaultMaxRetries)
	assert.Equal(t, 5, d.MaxRetriesCap)
	assert.Equal(t, time.Minute, d.RateLimitWindow)
	assert.Equal(t, 20, d.DiscoveryResultCap)
	assert.Equal(t, 24*time.Hour, d.IdentityTTL)

	// 新租户：委托关闭，信任阈值 60，出站 20 / 入站 10 每窗口
	assert.False(t, d.DefaultDelegationEnabled)
	assert.Equal(t, 60.0, d.DefaultMinTrustThreshold)
	assert.Equal(t, 20, d.DefaultOutboundRateLimit)
	assert.Equal(t, 10, d.DefaultInboundRateLimit)
}

func TestDefaultConfig_Consistency(t *testing.T) {
	cfg := DefaultConfig()
	d := cfg.Delegation

	assert.Greater(t, cfg.Server.WriteTimeout, d.MaxTimeout, "write timeout must outlast the longest delegation")
	assert.LessOrEqual(t, d.DefaultTimeout, d.MaxTimeout)
	assert.LessOrEqual(t, d.DefaultMaxRetries, d.MaxRetriesCap)
	assert.Less(t, d.IdentityResolveGrace, d.IdentityTTL)
	assert.GreaterOrEqual(t, cfg.Server.RateLimitBurst, cfg.Server.RateLimitRPS)
	assert.LessOrEqual(t, cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
}

func TestDefaultConfig_Stores(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentlens",
		Name:            "agentlens",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}, cfg.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "delegation_logs", cfg.Mongo.Collection)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.InDelta(t, 0.1, cfg.Telemetry.SampleRate, 1e-9)
}
