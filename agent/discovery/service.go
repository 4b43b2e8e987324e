package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/identity"
	"github.com/agentkitai/agentlens/types"
)

const instrumentationName = "github.com/agentkitai/agentlens/agent/discovery"

// Rate limit directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// ServiceConfig holds configuration for the discovery service.
type ServiceConfig struct {
	// ResultCap bounds every discovery response regardless of the requested limit.
	ResultCap int `json:"result_cap"`

	// DefaultMinTrustThreshold applies to tenants without a stored policy.
	DefaultMinTrustThreshold float64 `json:"default_min_trust_threshold"`

	// DefaultDelegationEnabled applies to tenants without a stored policy.
	DefaultDelegationEnabled bool `json:"default_delegation_enabled"`

	// DefaultOutboundRateLimit applies to agents with no registered capability.
	DefaultOutboundRateLimit int `json:"default_outbound_rate_limit"`
}

// DefaultServiceConfig returns a ServiceConfig with sensible defaults.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		ResultCap:                20,
		DefaultMinTrustThreshold: 60,
		DefaultDelegationEnabled: false,
		DefaultOutboundRateLimit: 20,
	}
}

// Observer receives discovery measurements.
type Observer interface {
	ObserveDiscovery(ctx context.Context, scope string, results int, elapsed time.Duration)
	ObserveRateLimited(ctx context.Context, direction string)
}

type nopObserver struct{}

func (nopObserver) ObserveDiscovery(context.Context, string, int, time.Duration) {}
func (nopObserver) ObserveRateLimited(context.Context, string)                   {}

// Service answers discovery queries and enforces tenant policy and per-agent quotas.
type Service struct {
	store      CapabilityStore
	configs    ConfigStore
	anonymizer identity.Anonymizer
	limiter    RateLimiter
	config     *ServiceConfig
	observer   Observer
	tracer     trace.Tracer
	logger     *zap.Logger
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService creates a discovery service. Nil stores and limiter fall back to
// in-memory implementations.
func NewService(store CapabilityStore, configs ConfigStore, anonymizer identity.Anonymizer, limiter RateLimiter, config *ServiceConfig, logger *zap.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		store = NewMemoryCapabilityStore()
	}
	if configs == nil {
		configs = NewMemoryConfigStore()
	}
	if anonymizer == nil {
		anonymizer = identity.NewManager(nil, identity.DefaultConfig(), logger)
	}
	if limiter == nil {
		limiter = NewFixedWindowLimiter(time.Minute)
	}
	if config == nil {
		config = DefaultServiceConfig()
	}
	if config.ResultCap <= 0 {
		config.ResultCap = DefaultServiceConfig().ResultCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:      store,
		configs:    configs,
		anonymizer: anonymizer,
		limiter:    limiter,
		config:     config,
		observer:   nopObserver{},
		tracer:     otel.Tracer(instrumentationName),
		logger:     logger.With(zap.String("component", "discovery_service")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover returns anonymized candidates matching the query under the
// tenant's policy. Internal scope searches the tenant's own capabilities;
// external scope searches externally published capabilities of all tenants.
func (s *Service) Discover(ctx context.Context, tenantID string, q Query) (*DiscoverResult, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "discovery.discover",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("task.type", string(q.TaskType)),
			attribute.String("scope", string(q.Scope))))
	defer span.End()

	result, err := s.discover(ctx, tenantID, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", result.Total))
	s.observer.ObserveDiscovery(ctx, string(q.Scope), result.Total, s.now().Sub(start))
	return result, nil
}

func (s *Service) discover(ctx context.Context, tenantID string, q Query) (*DiscoverResult, error) {
	if err := validateQuery(tenantID, &q); err != nil {
		return nil, err
	}

	policy, err := s.GetDiscoveryConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	threshold := policy.MinTrustThreshold
	if q.MinTrustScore != nil && *q.MinTrustScore > threshold {
		threshold = *q.MinTrustScore
	}

	filter := ScanFilter{Scope: q.Scope, TaskType: q.TaskType, EnabledOnly: true}
	if q.Scope == ScopeInternal {
		filter.TenantID = tenantID
	}
	rows, err := s.store.Scan(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("scan capabilities: %w", err)
	}

	matched := rows[:0]
	for _, c := range rows {
		if matchesQuery(c, &q, threshold) {
			matched = append(matched, c)
		}
	}
	sortForDiscovery(matched)

	limit := q.Limit
	if limit <= 0 || limit > s.config.ResultCap {
		limit = s.config.ResultCap
	}
	excluded := make(map[string]struct{}, len(q.ExcludeAnonymousIDs))
	for _, id := range q.ExcludeAnonymousIDs {
		excluded[id] = struct{}{}
	}

	results := make([]Candidate, 0, min(limit, len(matched)))
	for _, c := range matched {
		if len(results) >= limit {
			break
		}
		anonID, err := s.anonymizer.GetOrRotateAnonymousID(ctx, c.TenantID, c.AgentID)
		if err != nil {
			return nil, fmt.Errorf("anonymize candidate: %w", err)
		}
		if _, skip := excluded[anonID]; skip {
			continue
		}
		results = append(results, toCandidate(c, anonID))
	}
	return &DiscoverResult{Results: results, Total: len(results)}, nil
}

func validateQuery(tenantID string, q *Query) error {
	if tenantID == "" {
		return types.NewValidationError("tenantId is required")
	}
	if q.TaskType == "" {
		return types.NewValidationError("taskType is required")
	}
	if !q.TaskType.Valid() {
		return types.NewValidationError("unknown taskType %q", q.TaskType)
	}
	if q.Scope == "" {
		q.Scope = ScopeInternal
	}
	if !q.Scope.Valid() {
		return types.NewValidationError("unknown scope %q", q.Scope)
	}
	if q.MinTrustScore != nil && (*q.MinTrustScore < 0 || *q.MinTrustScore > 100) {
		return types.NewValidationError("minTrustScore must be between 0 and 100")
	}
	if q.MaxCostUsd != nil && *q.MaxCostUsd < 0 {
		return types.NewValidationError("maxCostUsd must not be negative")
	}
	if q.MaxLatencyMs != nil && *q.MaxLatencyMs < 0 {
		return types.NewValidationError("maxLatencyMs must not be negative")
	}
	return nil
}

func matchesQuery(c *Capability, q *Query, threshold float64) bool {
	if !c.Enabled || c.Scope != q.Scope || !c.Matches(q.TaskType, q.CustomType) {
		return false
	}
	if c.QualityMetrics.TrustScorePercentile < threshold {
		return false
	}
	if q.MaxCostUsd != nil && c.EstimatedCostUsd > *q.MaxCostUsd {
		return false
	}
	if q.MaxLatencyMs != nil && c.EstimatedLatencyMs > *q.MaxLatencyMs {
		return false
	}
	return true
}

// sortForDiscovery orders by trust descending, then registration order.
func sortForDiscovery(caps []*Capability) {
	sort.SliceStable(caps, func(i, j int) bool {
		a, b := caps[i], caps[j]
		if a.QualityMetrics.TrustScorePercentile != b.QualityMetrics.TrustScorePercentile {
			return a.QualityMetrics.TrustScorePercentile > b.QualityMetrics.TrustScorePercentile
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func sortByRegistration(caps []*Capability) {
	sort.SliceStable(caps, func(i, j int) bool {
		if !caps[i].CreatedAt.Equal(caps[j].CreatedAt) {
			return caps[i].CreatedAt.Before(caps[j].CreatedAt)
		}
		return caps[i].ID < caps[j].ID
	})
}

func toCandidate(c *Capability, anonID string) Candidate {
	return Candidate{
		AnonymousAgentID:   anonID,
		TaskType:           c.TaskType,
		CustomType:         c.CustomType,
		InputSchema:        c.InputSchema,
		OutputSchema:       c.OutputSchema,
		QualityMetrics:     c.QualityMetrics,
		EstimatedLatencyMs: c.EstimatedLatencyMs,
		EstimatedCostUsd:   c.EstimatedCostUsd,
		MaxInputBytes:      c.MaxInputBytes,
		Scope:              c.Scope,
	}
}

// =============================================================================
// Tenant policy
// =============================================================================

// GetDiscoveryConfig returns the tenant policy, or the defaults when none is stored.
func (s *Service) GetDiscoveryConfig(ctx context.Context, tenantID string) (*DiscoveryConfig, error) {
	if tenantID == "" {
		return nil, types.NewValidationError("tenantId is required")
	}
	cfg, err := s.configs.GetConfig(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load discovery config: %w", err)
	}
	if cfg == nil {
		return &DiscoveryConfig{
			TenantID:          tenantID,
			MinTrustThreshold: s.config.DefaultMinTrustThreshold,
			DelegationEnabled: s.config.DefaultDelegationEnabled,
		}, nil
	}
	return cfg, nil
}

// UpdateDiscoveryConfig merges upd into the tenant policy.
func (s *Service) UpdateDiscoveryConfig(ctx context.Context, tenantID string, upd DiscoveryConfigUpdate) (*DiscoveryConfig, error) {
	if upd.MinTrustThreshold != nil && (*upd.MinTrustThreshold < 0 || *upd.MinTrustThreshold > 100) {
		return nil, types.NewValidationError("minTrustThreshold must be between 0 and 100")
	}
	cfg, err := s.GetDiscoveryConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if upd.MinTrustThreshold != nil {
		cfg.MinTrustThreshold = *upd.MinTrustThreshold
	}
	if upd.DelegationEnabled != nil {
		cfg.DelegationEnabled = *upd.DelegationEnabled
	}
	cfg.UpdatedAt = s.now().UTC()
	if err := s.configs.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save discovery config: %w", err)
	}
	s.logger.Info("discovery config updated",
		zap.String("tenant_id", tenantID),
		zap.Float64("min_trust_threshold", cfg.MinTrustThreshold),
		zap.Bool("delegation_enabled", cfg.DelegationEnabled))
	return cfg, nil
}

// =============================================================================
// Rate limiting
// =============================================================================

// CheckOutboundRateLimit charges one outbound delegation to the agent.
func (s *Service) CheckOutboundRateLimit(ctx context.Context, tenantID, agentID string, limit int) error {
	return s.checkRateLimit(ctx, DirectionOutbound, tenantID, agentID, limit)
}

// CheckInboundRateLimit charges one inbound delegation to the agent.
func (s *Service) CheckInboundRateLimit(ctx context.Context, tenantID, agentID string, limit int) error {
	return s.checkRateLimit(ctx, DirectionInbound, tenantID, agentID, limit)
}

func (s *Service) checkRateLimit(ctx context.Context, direction, tenantID, agentID string, limit int) error {
	key := direction + ":" + tenantID + ":" + agentID
	ok, err := s.limiter.Allow(ctx, key, limit)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !ok {
		s.observer.ObserveRateLimited(ctx, direction)
		return types.NewRateLimitError("%s rate limit of %d exceeded", direction, limit)
	}
	return nil
}

// OutboundLimitFor returns the strictest outbound limit across the agent's
// enabled capabilities, or the configured default when it has none.
func (s *Service) OutboundLimitFor(ctx context.Context, tenantID, agentID string) (int, error) {
	caps, err := s.store.ListByAgent(ctx, tenantID, agentID)
	if err != nil {
		return 0, fmt.Errorf("list capabilities: %w", err)
	}
	limit := 0
	for _, c := range caps {
		if !c.Enabled || c.OutboundRateLimit <= 0 {
			continue
		}
		if limit == 0 || c.OutboundRateLimit < limit {
			limit = c.OutboundRateLimit
		}
	}
	if limit == 0 {
		limit = s.config.DefaultOutboundRateLimit
	}
	return limit, nil
}
