package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/internal/database"
	"github.com/agentkitai/agentlens/types"
)

// mutateRetries bounds retries of a read-modify-write on lock conflicts.
const mutateRetries = 3

// CapabilityStore persists capabilities and tenant discovery policies with GORM.
type CapabilityStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCapabilityStore creates a CapabilityStore on db.
func NewCapabilityStore(db *gorm.DB, logger *zap.Logger) *CapabilityStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityStore{db: db, logger: logger.With(zap.String("component", "capability_store"))}
}

func capabilityNotFound(id string) error {
	return types.NewNotFoundError("capability %s not found", id)
}

func (s *CapabilityStore) Create(ctx context.Context, c *discovery.Capability) error {
	if err := s.db.WithContext(ctx).Create(capabilityToModel(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return types.NewError(types.ErrConflict, "capability already registered").WithHTTPStatus(409).WithCause(err)
		}
		return fmt.Errorf("create capability: %w", err)
	}
	return nil
}

func (s *CapabilityStore) Get(ctx context.Context, id string) (*discovery.Capability, error) {
	var m CapabilityModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, capabilityNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get capability: %w", err)
	}
	return m.toCapability(), nil
}

func (s *CapabilityStore) ListByAgent(ctx context.Context, tenantID, agentID string) ([]*discovery.Capability, error) {
	var rows []CapabilityModel
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	return toCapabilities(rows), nil
}

// Mutate runs a locked read-modify-write in a transaction.
func (s *CapabilityStore) Mutate(ctx context.Context, id string, fn func(c *discovery.Capability) error) (*discovery.Capability, error) {
	var updated *discovery.Capability
	err := database.TransactionWithRetry(ctx, s.db, mutateRetries, func(tx *gorm.DB) error {
		var m CapabilityModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return capabilityNotFound(id)
		}
		if err != nil {
			return err
		}
		c := m.toCapability()
		if err := fn(c); err != nil {
			return err
		}
		// Identity columns are immutable.
		c.ID, c.TenantID, c.AgentID, c.CreatedAt = m.ID, m.TenantID, m.AgentID, m.CreatedAt
		if err := tx.Save(capabilityToModel(c)).Error; err != nil {
			return err
		}
		updated = c
		return nil
	}, s.logger)
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("mutate capability: %w", err)
	}
	return updated, nil
}

func (s *CapabilityStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&CapabilityModel{})
	if res.Error != nil {
		return fmt.Errorf("delete capability: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return capabilityNotFound(id)
	}
	return nil
}

func (s *CapabilityStore) Scan(ctx context.Context, filter discovery.ScanFilter) ([]*discovery.Capability, error) {
	q := s.db.WithContext(ctx).Model(&CapabilityModel{})
	if filter.TenantID != "" {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Scope != "" {
		q = q.Where("scope = ?", string(filter.Scope))
	}
	if filter.TaskType != "" {
		q = q.Where("task_type = ?", string(filter.TaskType))
	}
	if filter.EnabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var rows []CapabilityModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan capabilities: %w", err)
	}
	return toCapabilities(rows), nil
}

func toCapabilities(rows []CapabilityModel) []*discovery.Capability {
	out := make([]*discovery.Capability, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toCapability())
	}
	return out
}

// =============================================================================
// Tenant policies
// =============================================================================

func (s *CapabilityStore) GetConfig(ctx context.Context, tenantID string) (*discovery.DiscoveryConfig, error) {
	var m DiscoveryConfigModel
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get discovery config: %w", err)
	}
	return &discovery.DiscoveryConfig{
		TenantID:          m.TenantID,
		MinTrustThreshold: m.MinTrustThreshold,
		DelegationEnabled: m.DelegationEnabled,
		UpdatedAt:         m.UpdatedAt.UTC(),
	}, nil
}

func (s *CapabilityStore) SaveConfig(ctx context.Context, cfg *discovery.DiscoveryConfig) error {
	m := &DiscoveryConfigModel{
		TenantID:          cfg.TenantID,
		MinTrustThreshold: cfg.MinTrustThreshold,
		DelegationEnabled: cfg.DelegationEnabled,
		UpdatedAt:         cfg.UpdatedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"min_trust_threshold", "delegation_enabled", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("save discovery config: %w", err)
	}
	s.logger.Debug("discovery config saved", zap.String("tenant_id", cfg.TenantID))
	return nil
}

var (
	_ discovery.CapabilityStore = (*CapabilityStore)(nil)
	_ discovery.ConfigStore     = (*CapabilityStore)(nil)
)
