package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/identity"
	"github.com/agentkitai/agentlens/types"
)

// RegistryConfig holds configuration for the capability registry.
type RegistryConfig struct {
	// DefaultInboundRateLimit applies when registration omits inboundRateLimit.
	DefaultInboundRateLimit int `json:"default_inbound_rate_limit"`

	// DefaultOutboundRateLimit applies when registration omits outboundRateLimit.
	DefaultOutboundRateLimit int `json:"default_outbound_rate_limit"`

	// DefaultTrustScore is the trust percentile of a capability registered
	// without quality metrics.
	DefaultTrustScore float64 `json:"default_trust_score"`
}

// DefaultRegistryConfig returns a RegistryConfig with sensible defaults.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		DefaultInboundRateLimit:  10,
		DefaultOutboundRateLimit: 20,
		DefaultTrustScore:        50.0,
	}
}

// CapabilityRegistry manages the capabilities agents offer for delegation.
type CapabilityRegistry struct {
	store      CapabilityStore
	anonymizer identity.Anonymizer
	config     *RegistryConfig
	logger     *zap.Logger

	// clockMu keeps CreatedAt strictly increasing so registration order
	// survives as a discovery tie-break.
	clockMu     sync.Mutex
	lastCreated time.Time
	now         func() time.Time
}

// RegistryOption configures a CapabilityRegistry.
type RegistryOption func(*CapabilityRegistry)

// WithRegistryClock overrides the registry time source.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *CapabilityRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewCapabilityRegistry creates a new capability registry. The anonymizer is
// optional; when set, registration mints the agent's anonymous identity.
func NewCapabilityRegistry(store CapabilityStore, anonymizer identity.Anonymizer, config *RegistryConfig, logger *zap.Logger, opts ...RegistryOption) *CapabilityRegistry {
	if store == nil {
		store = NewMemoryCapabilityStore()
	}
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CapabilityRegistry{
		store:      store,
		anonymizer: anonymizer,
		config:     config,
		logger:     logger.With(zap.String("component", "capability_registry")),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store exposes the backing store.
func (r *CapabilityRegistry) Store() CapabilityStore {
	return r.store
}

func (r *CapabilityRegistry) nextCreatedAt() time.Time {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()
	now := r.now().UTC()
	if !now.After(r.lastCreated) {
		now = r.lastCreated.Add(time.Microsecond)
	}
	r.lastCreated = now
	return now
}

// Create validates and registers a capability for the agent.
func (r *CapabilityRegistry) Create(ctx context.Context, tenantID, agentID string, in CreateCapabilityInput) (*Capability, error) {
	if tenantID == "" || agentID == "" {
		return nil, types.NewValidationError("tenantId and agentId are required")
	}
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	existing, err := r.store.ListByAgent(ctx, tenantID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	for _, c := range existing {
		if c.TaskType == in.TaskType && c.CustomType == in.CustomType {
			return nil, types.NewError(types.ErrConflict,
				fmt.Sprintf("agent %s already registered task type %s", agentID, in.TaskType)).
				WithHTTPStatus(409)
		}
	}

	now := r.nextCreatedAt()
	c := &Capability{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		AgentID:            agentID,
		TaskType:           in.TaskType,
		CustomType:         in.CustomType,
		InputSchema:        in.InputSchema,
		OutputSchema:       in.OutputSchema,
		QualityMetrics:     QualityMetrics{TrustScorePercentile: r.config.DefaultTrustScore},
		EstimatedLatencyMs: in.EstimatedLatencyMs,
		EstimatedCostUsd:   in.EstimatedCostUsd,
		MaxInputBytes:      in.MaxInputBytes,
		Scope:              ScopeInternal,
		Enabled:            true,
		AcceptDelegations:  false,
		InboundRateLimit:   r.config.DefaultInboundRateLimit,
		OutboundRateLimit:  r.config.DefaultOutboundRateLimit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.QualityMetrics != nil {
		c.QualityMetrics = *in.QualityMetrics
	}
	if in.Scope != "" {
		c.Scope = in.Scope
	}
	if in.Enabled != nil {
		c.Enabled = *in.Enabled
	}
	if in.AcceptDelegations != nil {
		c.AcceptDelegations = *in.AcceptDelegations
	}
	if in.InboundRateLimit != nil {
		c.InboundRateLimit = *in.InboundRateLimit
	}
	if in.OutboundRateLimit != nil {
		c.OutboundRateLimit = *in.OutboundRateLimit
	}

	if err := r.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("save capability: %w", err)
	}

	if r.anonymizer != nil {
		if _, err := r.anonymizer.GetOrRotateAnonymousID(ctx, tenantID, agentID); err != nil {
			r.logger.Warn("failed to issue anonymous identity", zap.Error(err))
		}
	}

	r.logger.Info("capability registered",
		zap.String("tenant_id", tenantID),
		zap.String("agent_id", agentID),
		zap.String("capability_id", c.ID),
		zap.String("task_type", string(c.TaskType)))
	return c, nil
}

// ListByAgent returns the agent's capabilities in registration order.
func (r *CapabilityRegistry) ListByAgent(ctx context.Context, tenantID, agentID string) ([]*Capability, error) {
	return r.store.ListByAgent(ctx, tenantID, agentID)
}

// GetByID returns a capability owned by the tenant.
func (r *CapabilityRegistry) GetByID(ctx context.Context, tenantID, id string) (*Capability, error) {
	c, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, errCapabilityNotFound(id)
	}
	return c, nil
}

// Delete removes a capability owned by the tenant.
func (r *CapabilityRegistry) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.GetByID(ctx, tenantID, id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("capability deleted", zap.String("tenant_id", tenantID), zap.String("capability_id", id))
	return nil
}

// UpdatePermissions changes enablement, delegation acceptance and rate limits.
func (r *CapabilityRegistry) UpdatePermissions(ctx context.Context, tenantID, id string, upd PermissionUpdate) (*Capability, error) {
	if err := validateRateLimit("inboundRateLimit", upd.InboundRateLimit); err != nil {
		return nil, err
	}
	if err := validateRateLimit("outboundRateLimit", upd.OutboundRateLimit); err != nil {
		return nil, err
	}

	updated, err := r.store.Mutate(ctx, id, func(c *Capability) error {
		if c.TenantID != tenantID {
			return errCapabilityNotFound(id)
		}
		if upd.Enabled != nil {
			c.Enabled = *upd.Enabled
		}
		if upd.AcceptDelegations != nil {
			c.AcceptDelegations = *upd.AcceptDelegations
		}
		if upd.InboundRateLimit != nil {
			c.InboundRateLimit = *upd.InboundRateLimit
		}
		if upd.OutboundRateLimit != nil {
			c.OutboundRateLimit = *upd.OutboundRateLimit
		}
		c.UpdatedAt = r.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordOutcome folds a finished delegation into the capability's quality metrics.
func (r *CapabilityRegistry) RecordOutcome(ctx context.Context, id string, success bool) error {
	_, err := r.store.Mutate(ctx, id, func(c *Capability) error {
		n := c.QualityMetrics.CompletedTasks + 1
		outcome := 0.0
		if success {
			outcome = 1.0
		}
		c.QualityMetrics.SuccessRate = (c.QualityMetrics.SuccessRate*float64(n-1) + outcome) / float64(n)
		c.QualityMetrics.CompletedTasks = n
		c.UpdatedAt = r.now().UTC()
		return nil
	})
	return err
}

// FindForTask returns the agent's first capability serving the task type.
func (r *CapabilityRegistry) FindForTask(ctx context.Context, tenantID, agentID string, taskType TaskType, customType string) (*Capability, error) {
	caps, err := r.store.ListByAgent(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}
	for _, c := range caps {
		if c.Matches(taskType, customType) {
			return c, nil
		}
	}
	return nil, types.NewNotFoundError("no %s capability registered for agent", taskType)
}

func validateCreate(in *CreateCapabilityInput) error {
	if in.TaskType == "" {
		return types.NewValidationError("taskType is required")
	}
	if !in.TaskType.Valid() {
		return types.NewValidationError("unknown taskType %q", in.TaskType)
	}
	if in.TaskType == TaskTypeCustom && in.CustomType == "" {
		return types.NewValidationError("customType is required for custom task type")
	}
	if err := validateSchema("inputSchema", in.InputSchema); err != nil {
		return err
	}
	if err := validateSchema("outputSchema", in.OutputSchema); err != nil {
		return err
	}
	if in.Scope != "" && !in.Scope.Valid() {
		return types.NewValidationError("unknown scope %q", in.Scope)
	}
	if q := in.QualityMetrics; q != nil {
		if q.TrustScorePercentile < 0 || q.TrustScorePercentile > 100 {
			return types.NewValidationError("trustScorePercentile must be between 0 and 100")
		}
		if q.SuccessRate < 0 || q.SuccessRate > 1 {
			return types.NewValidationError("successRate must be between 0 and 1")
		}
		if q.CompletedTasks < 0 {
			return types.NewValidationError("completedTasks must not be negative")
		}
	}
	if in.EstimatedLatencyMs < 0 || in.EstimatedCostUsd < 0 || in.MaxInputBytes < 0 {
		return types.NewValidationError("latency, cost and input size must not be negative")
	}
	if err := validateRateLimit("inboundRateLimit", in.InboundRateLimit); err != nil {
		return err
	}
	return validateRateLimit("outboundRateLimit", in.OutboundRateLimit)
}

func validateSchema(field string, schema json.RawMessage) error {
	if len(schema) == 0 || string(schema) == "null" {
		return types.NewValidationError("%s is required", field)
	}
	if !json.Valid(schema) {
		return types.NewValidationError("%s must be valid JSON", field)
	}
	return nil
}

func validateRateLimit(field string, v *int) error {
	if v != nil && *v < 1 {
		return types.NewValidationError("%s must be at least 1", field)
	}
	return nil
}
