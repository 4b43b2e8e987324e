package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/internal/cache"
)

type countingConfigStore struct {
	*discovery.MemoryConfigStore
	reads int
}

func (c *countingConfigStore) GetConfig(ctx context.Context, tenantID string) (*discovery.DiscoveryConfig, error) {
	c.reads++
	return c.MemoryConfigStore.GetConfig(ctx, tenantID)
}

func TestCachedConfigStore(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	inner := &countingConfigStore{MemoryConfigStore: discovery.NewMemoryConfigStore()}
	store := NewCachedConfigStore(inner, manager, 0, zap.NewNop())
	ctx := context.Background()

	cfg, err := store.GetConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, cfg, "absent policies are not cached")

	require.NoError(t, store.SaveConfig(ctx, &discovery.DiscoveryConfig{TenantID: "t1", MinTrustThreshold: 70, DelegationEnabled: true}))

	for i := 0; i < 3; i++ {
		cfg, err = store.GetConfig(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, 70.0, cfg.MinTrustThreshold)
	}
	assert.Equal(t, 2, inner.reads, "one miss before save, one after")

	require.NoError(t, store.SaveConfig(ctx, &discovery.DiscoveryConfig{TenantID: "t1", MinTrustThreshold: 10}))
	cfg, err = store.GetConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.MinTrustThreshold, "save invalidates")
}

func TestCachedConfigStore_FallsBackWhenCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)

	inner := discovery.NewMemoryConfigStore()
	require.NoError(t, inner.SaveConfig(context.Background(), &discovery.DiscoveryConfig{TenantID: "t1", MinTrustThreshold: 42}))

	store := NewCachedConfigStore(inner, manager, time.Minute, nil)
	require.NoError(t, manager.Close())

	cfg, err := store.GetConfig(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, cfg.MinTrustThreshold)
}
