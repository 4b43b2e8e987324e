// Package discovery provides the capability registry and policy-filtered
// discovery used for agent-to-agent delegation.
//
// The package implements:
//   - Capability Registration: agents register the task types they can handle,
//     together with schemas, cost, latency and rate limits
//   - Discovery: tenant-policy-gated search over enabled capabilities that
//     returns anonymized candidates only
//   - Tenant Policy: per-tenant DiscoveryConfig (trust threshold, delegation switch)
//   - Rate Limiting: per-agent fixed-window inbound and outbound quotas, in
//     memory or backed by Redis
//
// # Basic Usage
//
//	ids := identity.NewManager(identity.NewMemoryStore(), identity.DefaultConfig(), logger)
//	store := discovery.NewMemoryCapabilityStore()
//	registry := discovery.NewCapabilityRegistry(store, ids, nil, logger)
//
//	capability, err := registry.Create(ctx, "tenant-1", "worker-1", discovery.CreateCapabilityInput{
//	    TaskType:     discovery.TaskTypeCodeReview,
//	    InputSchema:  json.RawMessage(`{"type":"object"}`),
//	    OutputSchema: json.RawMessage(`{"type":"object"}`),
//	})
//
//	svc := discovery.NewService(store, discovery.NewMemoryConfigStore(), ids,
//	    discovery.NewFixedWindowLimiter(time.Minute), nil, logger)
//	result, err := svc.Discover(ctx, "tenant-1", discovery.Query{
//	    TaskType:      discovery.TaskTypeCodeReview,
//	    MinTrustScore: ptr(50.0),
//	})
//
// # Ordering
//
// Results are ordered by trust score percentile descending, then by
// registration time ascending, then by capability ID, so repeated queries
// and fallback retries see the same candidate order.
package discovery
