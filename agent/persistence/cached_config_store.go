package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/internal/cache"
)

// JSONCache is the slice of cache.Manager used for read-through caching.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedConfigStore puts a read-through cache in front of a ConfigStore.
// Tenant policies are read on every discovery and delegation. Cache failures
// fall back to the inner store.
type CachedConfigStore struct {
	inner  discovery.ConfigStore
	cache  JSONCache
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewCachedConfigStore wraps inner. A ttl <= 0 uses the cache default.
func NewCachedConfigStore(inner discovery.ConfigStore, c JSONCache, ttl time.Duration, logger *zap.Logger) *CachedConfigStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedConfigStore{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		prefix: "agentlens:discovery_config:",
		logger: logger.With(zap.String("component", "config_cache")),
	}
}

func (s *CachedConfigStore) GetConfig(ctx context.Context, tenantID string) (*discovery.DiscoveryConfig, error) {
	key := s.prefix + tenantID
	var cached discovery.DiscoveryConfig
	err := s.cache.GetJSON(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !cache.IsCacheMiss(err) {
		s.logger.Warn("config cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	cfg, err := s.inner.GetConfig(ctx, tenantID)
	if err != nil || cfg == nil {
		return cfg, err
	}
	if err := s.cache.SetJSON(ctx, key, cfg, s.ttl); err != nil {
		s.logger.Warn("config cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
	return cfg, nil
}

func (s *CachedConfigStore) SaveConfig(ctx context.Context, cfg *discovery.DiscoveryConfig) error {
	if err := s.inner.SaveConfig(ctx, cfg); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, s.prefix+cfg.TenantID); err != nil {
		s.logger.Warn("config cache invalidation failed", zap.String("tenant_id", cfg.TenantID), zap.Error(err))
	}
	return nil
}

var (
	_ discovery.ConfigStore = (*CachedConfigStore)(nil)
	_ JSONCache             = (*cache.Manager)(nil)
)
