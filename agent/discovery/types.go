package discovery

import (
	"encoding/json"
	"time"
)

// TaskType is the fixed set of task kinds a capability can serve.
type TaskType string

const (
	TaskTypeTranslation    TaskType = "translation"
	TaskTypeSummarization  TaskType = "summarization"
	TaskTypeCodeReview     TaskType = "code-review"
	TaskTypeDataExtraction TaskType = "data-extraction"
	TaskTypeClassification TaskType = "classification"
	TaskTypeGeneration     TaskType = "generation"
	TaskTypeAnalysis       TaskType = "analysis"
	TaskTypeTransformation TaskType = "transformation"
	TaskTypeCustom         TaskType = "custom"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeTranslation, TaskTypeSummarization, TaskTypeCodeReview,
		TaskTypeDataExtraction, TaskTypeClassification, TaskTypeGeneration,
		TaskTypeAnalysis, TaskTypeTransformation, TaskTypeCustom:
		return true
	}
	return false
}

// Scope controls who may discover a capability.
type Scope string

const (
	// ScopeInternal capabilities are visible inside the owning tenant only.
	ScopeInternal Scope = "internal"
	// ScopeExternal capabilities are visible to every tenant.
	ScopeExternal Scope = "external"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeInternal || s == ScopeExternal
}

// QualityMetrics describes how well a capability has performed.
type QualityMetrics struct {
	TrustScorePercentile float64 `json:"trustScorePercentile"`
	SuccessRate          float64 `json:"successRate"`
	CompletedTasks       int64   `json:"completedTasks"`
}

// Capability is a task type an agent offers to other agents.
type Capability struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenantId"`
	AgentID            string          `json:"agentId"`
	TaskType           TaskType        `json:"taskType"`
	CustomType         string          `json:"customType,omitempty"`
	InputSchema        json.RawMessage `json:"inputSchema"`
	OutputSchema       json.RawMessage `json:"outputSchema"`
	QualityMetrics     QualityMetrics  `json:"qualityMetrics"`
	EstimatedLatencyMs int64           `json:"estimatedLatencyMs,omitempty"`
	EstimatedCostUsd   float64         `json:"estimatedCostUsd,omitempty"`
	MaxInputBytes      int64           `json:"maxInputBytes,omitempty"`
	Scope              Scope           `json:"scope"`
	Enabled            bool            `json:"enabled"`
	AcceptDelegations  bool            `json:"acceptDelegations"`
	InboundRateLimit   int             `json:"inboundRateLimit"`
	OutboundRateLimit  int             `json:"outboundRateLimit"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Matches reports whether the capability serves the task type and, when
// customType is non-empty, the custom type.
func (c *Capability) Matches(taskType TaskType, customType string) bool {
	if c.TaskType != taskType {
		return false
	}
	return customType == "" || c.CustomType == customType
}

// CreateCapabilityInput is the registration payload. Nil pointers take the
// registry defaults.
type CreateCapabilityInput struct {
	TaskType           TaskType        `json:"taskType"`
	CustomType         string          `json:"customType,omitempty"`
	InputSchema        json.RawMessage `json:"inputSchema"`
	OutputSchema       json.RawMessage `json:"outputSchema"`
	QualityMetrics     *QualityMetrics `json:"qualityMetrics,omitempty"`
	EstimatedLatencyMs int64           `json:"estimatedLatencyMs,omitempty"`
	EstimatedCostUsd   float64         `json:"estimatedCostUsd,omitempty"`
	MaxInputBytes      int64           `json:"maxInputBytes,omitempty"`
	Scope              Scope           `json:"scope,omitempty"`
	Enabled            *bool           `json:"enabled,omitempty"`
	AcceptDelegations  *bool           `json:"acceptDelegations,omitempty"`
	InboundRateLimit   *int            `json:"inboundRateLimit,omitempty"`
	OutboundRateLimit  *int            `json:"outboundRateLimit,omitempty"`
}

// PermissionUpdate changes the delegation-related flags of a capability.
type PermissionUpdate struct {
	Enabled           *bool `json:"enabled,omitempty"`
	AcceptDelegations *bool `json:"acceptDelegations,omitempty"`
	InboundRateLimit  *int  `json:"inboundRateLimit,omitempty"`
	OutboundRateLimit *int  `json:"outboundRateLimit,omitempty"`
}

// Query selects capabilities for discovery.
type Query struct {
	TaskType      TaskType `json:"taskType"`
	CustomType    string   `json:"customType,omitempty"`
	MinTrustScore *float64 `json:"minTrustScore,omitempty"`
	MaxCostUsd    *float64 `json:"maxCostUsd,omitempty"`
	MaxLatencyMs  *int64   `json:"maxLatencyMs,omitempty"`
	Scope         Scope    `json:"scope,omitempty"`
	Limit         int      `json:"limit,omitempty"`

	// ExcludeAnonymousIDs drops candidates already tried by a fallback run.
	ExcludeAnonymousIDs []string `json:"-"`
}

// Candidate is a discovery result. It carries the anonymous agent ID only.
type Candidate struct {
	AnonymousAgentID   string          `json:"anonymousAgentId"`
	TaskType           TaskType        `json:"taskType"`
	CustomType         string          `json:"customType,omitempty"`
	InputSchema        json.RawMessage `json:"inputSchema"`
	OutputSchema       json.RawMessage `json:"outputSchema"`
	QualityMetrics     QualityMetrics  `json:"qualityMetrics"`
	EstimatedLatencyMs int64           `json:"estimatedLatencyMs,omitempty"`
	EstimatedCostUsd   float64         `json:"estimatedCostUsd,omitempty"`
	MaxInputBytes      int64           `json:"maxInputBytes,omitempty"`
	Scope              Scope           `json:"scope"`
}

// DiscoverResult is the response to Discover.
type DiscoverResult struct {
	Results []Candidate `json:"results"`
	Total   int         `json:"total"`
}

// DiscoveryConfig is a tenant's discovery and delegation policy.
type DiscoveryConfig struct {
	TenantID          string    `json:"tenantId"`
	MinTrustThreshold float64   `json:"minTrustThreshold"`
	DelegationEnabled bool      `json:"delegationEnabled"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// DiscoveryConfigUpdate changes a tenant policy. Nil fields are left as is.
type DiscoveryConfigUpdate struct {
	MinTrustThreshold *float64 `json:"minTrustThreshold,omitempty"`
	DelegationEnabled *bool    `json:"delegationEnabled,omitempty"`
}

// ScanFilter narrows a capability store scan. Empty fields match anything.
type ScanFilter struct {
	TenantID    string
	Scope       Scope
	TaskType    TaskType
	EnabledOnly bool
}

// Matches applies the filter to a single capability.
func (f ScanFilter) Matches(c *Capability) bool {
	if f.TenantID != "" && c.TenantID != f.TenantID {
		return false
	}
	if f.Scope != "" && c.Scope != f.Scope {
		return false
	}
	if f.TaskType != "" && c.TaskType != f.TaskType {
		return false
	}
	return !f.EnabledOnly || c.Enabled
}
