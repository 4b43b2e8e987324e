package delegation

import (
	"context"
	"fmt"
	"sync"
)

// LogStore is the append-only delegation audit log.
type LogStore interface {
	Append(ctx context.Context, entry *LogEntry) error
	List(ctx context.Context, tenantID string, filter LogFilter) ([]*LogEntry, error)
}

// MemoryLogStore keeps the log in process, per tenant, in append order.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries map[string][]*LogEntry
}

// NewMemoryLogStore creates an empty MemoryLogStore.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{entries: make(map[string][]*LogEntry)}
}

func (s *MemoryLogStore) Append(_ context.Context, entry *LogEntry) error {
	if entry == nil || entry.ID == "" || entry.TenantID == "" {
		return fmt.Errorf("invalid log entry")
	}
	cp := *entry
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[cp.TenantID] = append(s.entries[cp.TenantID], &cp)
	return nil
}

func (s *MemoryLogStore) List(_ context.Context, tenantID string, filter LogFilter) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*LogEntry, 0)
	skipped := 0
	for _, e := range s.entries[tenantID] {
		if !filter.Matches(e) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Ensure MemoryLogStore implements LogStore.
var _ LogStore = (*MemoryLogStore)(nil)
