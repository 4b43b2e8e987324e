package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/agentkitai/agentlens/agent/delegation"
	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/agent/identity"
	"github.com/agentkitai/agentlens/types"
)

// CapabilityModel is the capabilities table.
type CapabilityModel struct {
	ID                   string    `gorm:"primaryKey;size:36"`
	TenantID             string    `gorm:"size:128;not null;index:idx_capabilities_agent,priority:1;index:idx_capabilities_tenant_task,priority:1"`
	AgentID              string    `gorm:"size:128;not null;index:idx_capabilities_agent,priority:2"`
	TaskType             string    `gorm:"size:64;not null;index:idx_capabilities_tenant_task,priority:2;index:idx_capabilities_scope_task,priority:2"`
	CustomType           string    `gorm:"size:128;not null;default:''"`
	InputSchema          string    `gorm:"type:text;not null"`
	OutputSchema         string    `gorm:"type:text;not null"`
	TrustScorePercentile float64   `gorm:"not null;default:0"`
	SuccessRate          float64   `gorm:"not null;default:0"`
	CompletedTasks       int64     `gorm:"not null;default:0"`
	EstimatedLatencyMs   int64     `gorm:"not null;default:0"`
	EstimatedCostUsd     float64   `gorm:"not null;default:0"`
	MaxInputBytes        int64     `gorm:"not null;default:0"`
	Scope                string    `gorm:"size:16;not null;index:idx_capabilities_scope_task,priority:1"`
	Enabled              bool      `gorm:"not null"`
	AcceptDelegations    bool      `gorm:"not null"`
	InboundRateLimit     int       `gorm:"not null"`
	OutboundRateLimit    int       `gorm:"not null"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

func (CapabilityModel) TableName() string { return "capabilities" }

func capabilityToModel(c *discovery.Capability) *CapabilityModel {
	return &CapabilityModel{
		ID:                   c.ID,
		TenantID:             c.TenantID,
		AgentID:              c.AgentID,
		TaskType:             string(c.TaskType),
		CustomType:           c.CustomType,
		InputSchema:          string(c.InputSchema),
		OutputSchema:         string(c.OutputSchema),
		TrustScorePercentile: c.QualityMetrics.TrustScorePercentile,
		SuccessRate:          c.QualityMetrics.SuccessRate,
		CompletedTasks:       c.QualityMetrics.CompletedTasks,
		EstimatedLatencyMs:   c.EstimatedLatencyMs,
		EstimatedCostUsd:     c.EstimatedCostUsd,
		MaxInputBytes:        c.MaxInputBytes,
		Scope:                string(c.Scope),
		Enabled:              c.Enabled,
		AcceptDelegations:    c.AcceptDelegations,
		InboundRateLimit:     c.InboundRateLimit,
		OutboundRateLimit:    c.OutboundRateLimit,
		CreatedAt:            c.CreatedAt.UTC(),
		UpdatedAt:            c.UpdatedAt.UTC(),
	}
}

func (m *CapabilityModel) toCapability() *discovery.Capability {
	return &discovery.Capability{
		ID:           m.ID,
		TenantID:     m.TenantID,
		AgentID:      m.AgentID,
		TaskType:     discovery.TaskType(m.TaskType),
		CustomType:   m.CustomType,
		InputSchema:  json.RawMessage(m.InputSchema),
		OutputSchema: json.RawMessage(m.OutputSchema),
		QualityMetrics: discovery.QualityMetrics{
			TrustScorePercentile: m.TrustScorePercentile,
			SuccessRate:          m.SuccessRate,
			CompletedTasks:       m.CompletedTasks,
		},
		EstimatedLatencyMs: m.EstimatedLatencyMs,
		EstimatedCostUsd:   m.EstimatedCostUsd,
		MaxInputBytes:      m.MaxInputBytes,
		Scope:              discovery.Scope(m.Scope),
		Enabled:            m.Enabled,
		AcceptDelegations:  m.AcceptDelegations,
		InboundRateLimit:   m.InboundRateLimit,
		OutboundRateLimit:  m.OutboundRateLimit,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
}

// DiscoveryConfigModel is the discovery_configs table.
type DiscoveryConfigModel struct {
	TenantID          string    `gorm:"primaryKey;size:128"`
	MinTrustThreshold float64   `gorm:"not null"`
	DelegationEnabled bool      `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (DiscoveryConfigModel) TableName() string { return "discovery_configs" }

// AnonymousIdentityModel is the anonymous_identities table.
type AnonymousIdentityModel struct {
	AnonymousID string    `gorm:"primaryKey;size:36"`
	TenantID    string    `gorm:"size:128;not null;index:idx_anonymous_identities_agent,priority:1"`
	AgentID     string    `gorm:"size:128;not null;index:idx_anonymous_identities_agent,priority:2"`
	ValidFrom   time.Time `gorm:"not null;index:idx_anonymous_identities_agent,priority:3"`
	ValidUntil  time.Time `gorm:"not null"`
}

func (AnonymousIdentityModel) TableName() string { return "anonymous_identities" }

func (m *AnonymousIdentityModel) toIdentity() *identity.AnonymousIdentity {
	return &identity.AnonymousIdentity{
		AnonymousID: m.AnonymousID,
		TenantID:    m.TenantID,
		AgentID:     m.AgentID,
		ValidFrom:   m.ValidFrom.UTC(),
		ValidUntil:  m.ValidUntil.UTC(),
	}
}

// DelegationLogModel is the delegation_logs table. Seq preserves append order.
type DelegationLogModel struct {
	Seq               uint      `gorm:"primaryKey;autoIncrement"`
	ID                string    `gorm:"size:36;not null;uniqueIndex"`
	TenantID          string    `gorm:"size:128;not null;index:idx_delegation_logs_tenant,priority:1"`
	RequestID         string    `gorm:"size:36;not null;index"`
	Direction         string    `gorm:"size:16;not null"`
	AgentID           string    `gorm:"size:128;not null"`
	AnonymousTargetID string    `gorm:"size:64;not null"`
	TaskType          string    `gorm:"size:64;not null"`
	Status            string    `gorm:"size:16;not null"`
	ErrorCode         string    `gorm:"size:64;not null;default:''"`
	ExecutionTimeMs   int64     `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null;index:idx_delegation_logs_tenant,priority:2"`
	CompletedAt       time.Time `gorm:"not null"`
}

func (DelegationLogModel) TableName() string { return "delegation_logs" }

func logEntryToModel(e *delegation.LogEntry) *DelegationLogModel {
	return &DelegationLogModel{
		ID:                e.ID,
		TenantID:          e.TenantID,
		RequestID:         e.RequestID,
		Direction:         string(e.Direction),
		AgentID:           e.AgentID,
		AnonymousTargetID: e.AnonymousTargetID,
		TaskType:          string(e.TaskType),
		Status:            string(e.Status),
		ErrorCode:         string(e.ErrorCode),
		ExecutionTimeMs:   e.ExecutionTimeMs,
		CreatedAt:         e.CreatedAt.UTC(),
		CompletedAt:       e.CompletedAt.UTC(),
	}
}

func (m *DelegationLogModel) toEntry() *delegation.LogEntry {
	return &delegation.LogEntry{
		ID:                m.ID,
		TenantID:          m.TenantID,
		RequestID:         m.RequestID,
		Direction:         delegation.Direction(m.Direction),
		AgentID:           m.AgentID,
		AnonymousTargetID: m.AnonymousTargetID,
		TaskType:          discovery.TaskType(m.TaskType),
		Status:            delegation.Status(m.Status),
		ErrorCode:         types.ErrorCode(m.ErrorCode),
		ExecutionTimeMs:   m.ExecutionTimeMs,
		CreatedAt:         m.CreatedAt.UTC(),
		CompletedAt:       m.CompletedAt.UTC(),
	}
}

// InitDatabase 自动迁移全部表结构
func InitDatabase(db *gorm.DB) error {
	err := db.AutoMigrate(
		&CapabilityModel{},
		&DiscoveryConfigModel{},
		&AnonymousIdentityModel{},
		&DelegationLogModel{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}
