package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/identity"
	"github.com/agentkitai/agentlens/types"
)

type discoveryFixture struct {
	registry *CapabilityRegistry
	service  *Service
	ids      *identity.Manager
	configs  *MemoryConfigStore
}

func newDiscoveryFixture(t *testing.T) *discoveryFixture {
	t.Helper()
	ids := identity.NewManager(identity.NewMemoryStore(), identity.DefaultConfig(), zap.NewNop())
	store := NewMemoryCapabilityStore()
	configs := NewMemoryConfigStore()
	return &discoveryFixture{
		registry: NewCapabilityRegistry(store, ids, nil, zap.NewNop()),
		service:  NewService(store, configs, ids, NewFixedWindowLimiter(time.Minute), nil, zap.NewNop()),
		ids:      ids,
		configs:  configs,
	}
}

func (f *discoveryFixture) register(t *testing.T, tenantID, agentID string, trust float64, mutate ...func(*CreateCapabilityInput)) *Capability {
	t.Helper()
	in := validInput(TaskTypeCodeReview)
	in.QualityMetrics = &QualityMetrics{TrustScorePercentile: trust}
	for _, m := range mutate {
		m(&in)
	}
	c, err := f.registry.Create(context.Background(), tenantID, agentID, in)
	require.NoError(t, err)
	return c
}

func TestService_DiscoverReturnsAnonymizedCandidates(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()
	f.register(t, "tenant-1", "worker-1", 80)

	res, err := f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview, MinTrustScore: ptr(50.0)})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 1, res.Total)

	anon := res.Results[0].AnonymousAgentID
	assert.NotEqual(t, "worker-1", anon)
	tenantID, agentID, err := f.ids.Resolve(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", tenantID)
	assert.Equal(t, "worker-1", agentID)
}

func TestService_DiscoverFilters(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()

	f.register(t, "tenant-1", "disabled", 90, func(in *CreateCapabilityInput) { in.Enabled = ptr(false) })
	f.register(t, "tenant-1", "low-trust", 55)
	f.register(t, "tenant-1", "expensive", 90, func(in *CreateCapabilityInput) { in.EstimatedCostUsd = 5 })
	f.register(t, "tenant-1", "slow", 90, func(in *CreateCapabilityInput) { in.EstimatedLatencyMs = 9000 })
	f.register(t, "tenant-1", "other-task", 90, func(in *CreateCapabilityInput) { in.TaskType = TaskTypeTranslation })
	f.register(t, "tenant-1", "external", 90, func(in *CreateCapabilityInput) { in.Scope = ScopeExternal })
	keep := f.register(t, "tenant-1", "keeper", 70, func(in *CreateCapabilityInput) {
		in.EstimatedCostUsd = 0.5
		in.EstimatedLatencyMs = 100
	})

	res, err := f.service.Discover(ctx, "tenant-1", Query{
		TaskType:     TaskTypeCodeReview,
		MaxCostUsd:   ptr(1.0),
		MaxLatencyMs: ptr(int64(1000)),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	anon, err := f.ids.GetOrRotateAnonymousID(ctx, keep.TenantID, keep.AgentID)
	require.NoError(t, err)
	assert.Equal(t, anon, res.Results[0].AnonymousAgentID)
}

func TestService_DiscoverTenantThresholdWins(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()
	f.register(t, "tenant-1", "worker-65", 65)
	f.register(t, "tenant-1", "worker-85", 85)

	_, err := f.service.UpdateDiscoveryConfig(ctx, "tenant-1", DiscoveryConfigUpdate{MinTrustThreshold: ptr(80.0)})
	require.NoError(t, err)

	res, err := f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview, MinTrustScore: ptr(10.0)})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 85.0, res.Results[0].QualityMetrics.TrustScorePercentile)
}

func TestService_DiscoverOrdering(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()
	f.register(t, "tenant-1", "a", 70)
	f.register(t, "tenant-1", "b", 90)
	f.register(t, "tenant-1", "c", 70)
	f.register(t, "tenant-1", "d", 80)

	res, err := f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview})
	require.NoError(t, err)
	require.Len(t, res.Results, 4)

	var order []string
	for _, r := range res.Results {
		_, agentID, err := f.ids.Resolve(ctx, r.AnonymousAgentID)
		require.NoError(t, err)
		order = append(order, agentID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, order)
}

func TestService_DiscoverResultCap(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.register(t, "tenant-1", fmt.Sprintf("worker-%02d", i), 75)
	}

	res, err := f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, res.Results, 20)
	assert.Equal(t, 20, res.Total)

	res, err = f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
}

func TestService_DiscoverScopes(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()
	f.register(t, "tenant-1", "own-internal", 80)
	f.register(t, "tenant-2", "foreign-internal", 80)
	f.register(t, "tenant-2", "foreign-external", 80, func(in *CreateCapabilityInput) { in.Scope = ScopeExternal })

	internal, err := f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview})
	require.NoError(t, err)
	require.Len(t, internal.Results, 1)
	_, agentID, err := f.ids.Resolve(ctx, internal.Results[0].AnonymousAgentID)
	require.NoError(t, err)
	assert.Equal(t, "own-internal", agentID)

	external, err := f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview, Scope: ScopeExternal})
	require.NoError(t, err)
	require.Len(t, external.Results, 1)
	_, agentID, err = f.ids.Resolve(ctx, external.Results[0].AnonymousAgentID)
	require.NoError(t, err)
	assert.Equal(t, "foreign-external", agentID)
}

func TestService_DiscoverExcludesTriedCandidates(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()
	f.register(t, "tenant-1", "first", 90)
	f.register(t, "tenant-1", "second", 80)

	all, err := f.service.Discover(ctx, "tenant-1", Query{TaskType: TaskTypeCodeReview})
	require.NoError(t, err)
	require.Len(t, all.Results, 2)

	rest, err := f.service.Discover(ctx, "tenant-1", Query{
		TaskType:            TaskTypeCodeReview,
		ExcludeAnonymousIDs: []string{all.Results[0].AnonymousAgentID},
	})
	require.NoError(t, err)
	require.Len(t, rest.Results, 1)
	assert.Equal(t, all.Results[1].AnonymousAgentID, rest.Results[0].AnonymousAgentID)
}

func TestService_DiscoverValidation(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()

	cases := []Query{
		{},
		{TaskType: "unknown"},
		{TaskType: TaskTypeCodeReview, Scope: "everywhere"},
		{TaskType: TaskTypeCodeReview, MinTrustScore: ptr(150.0)},
		{TaskType: TaskTypeCodeReview, MaxCostUsd: ptr(-1.0)},
	}
	for _, q := range cases {
		_, err := f.service.Discover(ctx, "tenant-1", q)
		assert.True(t, types.IsErrorCode(err, types.ErrValidation), "query %+v", q)
	}
}

func TestService_DiscoveryConfig(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()

	cfg, err := f.service.GetDiscoveryConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, cfg.MinTrustThreshold)
	assert.False(t, cfg.DelegationEnabled)

	updated, err := f.service.UpdateDiscoveryConfig(ctx, "tenant-1", DiscoveryConfigUpdate{DelegationEnabled: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.DelegationEnabled)
	assert.Equal(t, 60.0, updated.MinTrustThreshold)

	_, err = f.service.UpdateDiscoveryConfig(ctx, "tenant-1", DiscoveryConfigUpdate{MinTrustThreshold: ptr(-5.0)})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	_, err = f.service.UpdateDiscoveryConfig(ctx, "tenant-1", DiscoveryConfigUpdate{MinTrustThreshold: ptr(100.5)})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	stored, err := f.configs.GetConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, stored.DelegationEnabled)
}

func TestService_RateLimits(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.service.CheckOutboundRateLimit(ctx, "tenant-1", "req", 3))
	}
	err := f.service.CheckOutboundRateLimit(ctx, "tenant-1", "req", 3)
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimited))

	// Inbound and outbound counters are independent.
	assert.NoError(t, f.service.CheckInboundRateLimit(ctx, "tenant-1", "req", 1))
	assert.True(t, types.IsErrorCode(f.service.CheckInboundRateLimit(ctx, "tenant-1", "req", 1), types.ErrRateLimited))
}

func TestService_OutboundLimitFor(t *testing.T) {
	f := newDiscoveryFixture(t)
	ctx := context.Background()

	limit, err := f.service.OutboundLimitFor(ctx, "tenant-1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, 20, limit)

	f.register(t, "tenant-1", "req", 80, func(in *CreateCapabilityInput) { in.OutboundRateLimit = ptr(8) })
	f.register(t, "tenant-1", "req", 80, func(in *CreateCapabilityInput) {
		in.TaskType = TaskTypeAnalysis
		in.OutboundRateLimit = ptr(5)
	})

	limit, err = f.service.OutboundLimitFor(ctx, "tenant-1", "req")
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
}
