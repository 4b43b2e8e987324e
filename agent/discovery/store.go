package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentkitai/agentlens/types"
)

// CapabilityStore defines the persistence interface for capabilities.
// Implementations can back the registry with different storage backends
// (in-memory, database, etc.).
type CapabilityStore interface {
	Create(ctx context.Context, c *Capability) error
	Get(ctx context.Context, id string) (*Capability, error)
	ListByAgent(ctx context.Context, tenantID, agentID string) ([]*Capability, error)
	// Mutate applies fn to the stored capability atomically and persists the result.
	Mutate(ctx context.Context, id string, fn func(c *Capability) error) (*Capability, error)
	Delete(ctx context.Context, id string) error
	Scan(ctx context.Context, filter ScanFilter) ([]*Capability, error)
}

// ConfigStore persists tenant discovery policies.
type ConfigStore interface {
	// GetConfig returns the stored policy, or nil when the tenant has none.
	GetConfig(ctx context.Context, tenantID string) (*DiscoveryConfig, error)
	SaveConfig(ctx context.Context, cfg *DiscoveryConfig) error
}

func errCapabilityNotFound(id string) error {
	return types.NewNotFoundError("capability %s not found", id)
}

// MemoryCapabilityStore is a CapabilityStore backed by an in-memory map.
type MemoryCapabilityStore struct {
	mu           sync.RWMutex
	capabilities map[string]*Capability
}

// NewMemoryCapabilityStore creates a new MemoryCapabilityStore.
func NewMemoryCapabilityStore() *MemoryCapabilityStore {
	return &MemoryCapabilityStore{
		capabilities: make(map[string]*Capability),
	}
}

func (s *MemoryCapabilityStore) Create(_ context.Context, c *Capability) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid capability")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.capabilities[c.ID]; exists {
		return types.NewError(types.ErrConflict, fmt.Sprintf("capability %s already exists", c.ID))
	}
	s.capabilities[c.ID] = copyCapability(c)
	return nil
}

func (s *MemoryCapabilityStore) Get(_ context.Context, id string) (*Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.capabilities[id]
	if !ok {
		return nil, errCapabilityNotFound(id)
	}
	return copyCapability(c), nil
}

func (s *MemoryCapabilityStore) ListByAgent(_ context.Context, tenantID, agentID string) ([]*Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Capability, 0)
	for _, c := range s.capabilities {
		if c.TenantID == tenantID && c.AgentID == agentID {
			result = append(result, copyCapability(c))
		}
	}
	sortByRegistration(result)
	return result, nil
}

func (s *MemoryCapabilityStore) Mutate(_ context.Context, id string, fn func(c *Capability) error) (*Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.capabilities[id]
	if !ok {
		return nil, errCapabilityNotFound(id)
	}
	next := copyCapability(c)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.capabilities[id] = next
	return copyCapability(next), nil
}

func (s *MemoryCapabilityStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.capabilities[id]; !ok {
		return errCapabilityNotFound(id)
	}
	delete(s.capabilities, id)
	return nil
}

func (s *MemoryCapabilityStore) Scan(_ context.Context, filter ScanFilter) ([]*Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Capability, 0)
	for _, c := range s.capabilities {
		if filter.Matches(c) {
			result = append(result, copyCapability(c))
		}
	}
	return result, nil
}

func copyCapability(c *Capability) *Capability {
	cp := *c
	if c.InputSchema != nil {
		cp.InputSchema = append([]byte(nil), c.InputSchema...)
	}
	if c.OutputSchema != nil {
		cp.OutputSchema = append([]byte(nil), c.OutputSchema...)
	}
	return &cp
}

// MemoryConfigStore is a ConfigStore backed by an in-memory map.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]DiscoveryConfig
}

// NewMemoryConfigStore creates a new MemoryConfigStore.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]DiscoveryConfig)}
}

func (s *MemoryConfigStore) GetConfig(_ context.Context, tenantID string) (*DiscoveryConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[tenantID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (s *MemoryConfigStore) SaveConfig(_ context.Context, cfg *DiscoveryConfig) error {
	if cfg == nil || cfg.TenantID == "" {
		return fmt.Errorf("invalid discovery config")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.TenantID] = *cfg
	return nil
}

// Ensure memory stores implement their interfaces.
var (
	_ CapabilityStore = (*MemoryCapabilityStore)(nil)
	_ ConfigStore     = (*MemoryConfigStore)(nil)
)
