package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/agentkitai/agentlens/agent/identity"
)

// IdentityStore keeps every minted anonymous identity, including rotated ones.
type IdentityStore struct {
	db *gorm.DB
}

// NewIdentityStore creates an IdentityStore on db.
func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) Latest(ctx context.Context, tenantID, agentID string) (*identity.AnonymousIdentity, error) {
	var m AnonymousIdentityModel
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID).
		Order("valid_from DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest anonymous identity: %w", err)
	}
	return m.toIdentity(), nil
}

func (s *IdentityStore) FindByAnonymousID(ctx context.Context, anonymousID string) (*identity.AnonymousIdentity, error) {
	var m AnonymousIdentityModel
	err := s.db.WithContext(ctx).Where("anonymous_id = ?", anonymousID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find anonymous identity: %w", err)
	}
	return m.toIdentity(), nil
}

func (s *IdentityStore) Save(ctx context.Context, id *identity.AnonymousIdentity) error {
	m := &AnonymousIdentityModel{
		AnonymousID: id.AnonymousID,
		TenantID:    id.TenantID,
		AgentID:     id.AgentID,
		ValidFrom:   id.ValidFrom.UTC(),
		ValidUntil:  id.ValidUntil.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("save anonymous identity: %w", err)
	}
	return nil
}

var _ identity.Store = (*IdentityStore)(nil)
