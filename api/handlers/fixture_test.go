package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/delegation"
	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/agent/identity"
	"github.com/agentkitai/agentlens/agent/observability"
	"github.com/agentkitai/agentlens/agent/transport"
	"github.com/agentkitai/agentlens/types"
)

// apiFixture 基于内存实现组装完整的服务栈
type apiFixture struct {
	ids          *identity.Manager
	registry     *discovery.CapabilityRegistry
	discovery    *discovery.Service
	delegation   *delegation.Service
	collector    *observability.Collector
	capabilities *CapabilityHandler
	discover     *DiscoveryHandler
	delegations  *DelegationHandler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	ids := identity.NewManager(identity.NewMemoryStore(), identity.DefaultConfig(), logger)
	store := discovery.NewMemoryCapabilityStore()
	registry := discovery.NewCapabilityRegistry(store, ids, nil, logger)
	collector := observability.NewCollector(100)
	disc := discovery.NewService(store, discovery.NewMemoryConfigStore(), ids,
		discovery.NewFixedWindowLimiter(time.Minute), nil, logger,
		discovery.WithObserver(collector))
	svc, err := delegation.NewService(delegation.Dependencies{
		Transport:  transport.NewLocalTransport(logger),
		Discovery:  disc,
		Registry:   registry,
		Identities: ids,
		Observer:   collector,
	}, nil, logger)
	require.NoError(t, err)

	return &apiFixture{
		ids:          ids,
		registry:     registry,
		discovery:    disc,
		delegation:   svc,
		collector:    collector,
		capabilities: NewCapabilityHandler(registry, logger),
		discover:     NewDiscoveryHandler(disc, logger),
		delegations:  NewDelegationHandler(svc, collector, logger),
	}
}

func (f *apiFixture) enableDelegation(t *testing.T, tenantID string) {
	t.Helper()
	enabled := true
	_, err := f.discovery.UpdateDiscoveryConfig(context.Background(), tenantID,
		discovery.DiscoveryConfigUpdate{DelegationEnabled: &enabled})
	require.NoError(t, err)
}

func (f *apiFixture) registerWorker(t *testing.T, tenantID, agentID string, trust float64, accept bool) *discovery.Capability {
	t.Helper()
	c, err := f.registry.Create(context.Background(), tenantID, agentID, discovery.CreateCapabilityInput{
		TaskType:          discovery.TaskTypeCodeReview,
		InputSchema:       json.RawMessage(`{"type":"object"}`),
		OutputSchema:      json.RawMessage(`{"type":"object"}`),
		QualityMetrics:    &discovery.QualityMetrics{TrustScorePercentile: trust},
		AcceptDelegations: &accept,
	})
	require.NoError(t, err)
	return c
}

// asCaller 模拟认证中间件注入身份
func asCaller(r *http.Request, tenantID, agentID string) *http.Request {
	ctx := r.Context()
	if tenantID != "" {
		ctx = types.WithTenantID(ctx, tenantID)
	}
	if agentID != "" {
		ctx = types.WithAgentID(ctx, agentID)
	}
	return r.WithContext(ctx)
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// decodeData 解出 Response.Data 到 dst
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	if dst != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, dst))
	}
	return raw.Response
}
