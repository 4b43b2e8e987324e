package identity

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  map[string]*AnonymousIdentity
	reverse map[string]*AnonymousIdentity
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:  make(map[string]*AnonymousIdentity),
		reverse: make(map[string]*AnonymousIdentity),
	}
}

func agentKey(tenantID, agentID string) string {
	return tenantID + "\x00" + agentID
}

func (s *MemoryStore) Latest(_ context.Context, tenantID, agentID string) (*AnonymousIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cur, ok := s.latest[agentKey(tenantID, agentID)]; ok {
		cp := *cur
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindByAnonymousID(_ context.Context, anonymousID string) (*AnonymousIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if found, ok := s.reverse[anonymousID]; ok {
		cp := *found
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) Save(_ context.Context, identity *AnonymousIdentity) error {
	if identity == nil || identity.AnonymousID == "" {
		return fmt.Errorf("invalid anonymous identity")
	}
	cp := *identity
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[agentKey(cp.TenantID, cp.AgentID)] = &cp
	s.reverse[cp.AnonymousID] = &cp
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
