package identity

import (
	"context"
	"time"
)

// AnonymousIdentity maps a real agent to its current opaque identifier.
type AnonymousIdentity struct {
	AnonymousID string    `json:"anonymousAgentId"`
	TenantID    string    `json:"tenantId"`
	AgentID     string    `json:"agentId"`
	ValidFrom   time.Time `json:"validFrom"`
	ValidUntil  time.Time `json:"validUntil"`
}

// ValidAt reports whether the mapping is inside its validity window at t.
func (a *AnonymousIdentity) ValidAt(t time.Time) bool {
	return !t.Before(a.ValidFrom) && t.Before(a.ValidUntil)
}

// Anonymizer hands out anonymous IDs. It is the only identity capability
// exposed to discovery.
type Anonymizer interface {
	GetOrRotateAnonymousID(ctx context.Context, tenantID, agentID string) (string, error)
}

// Resolver maps an anonymous ID back to its owner. Internal routing only.
type Resolver interface {
	Resolve(ctx context.Context, anonymousID string) (tenantID, agentID string, err error)
}

// Store persists identity mappings. Superseded mappings are kept so that
// reverse lookups of recently rotated IDs keep working.
type Store interface {
	// Latest returns the most recently minted mapping for the agent, or nil.
	Latest(ctx context.Context, tenantID, agentID string) (*AnonymousIdentity, error)
	// FindByAnonymousID returns the mapping that minted anonymousID, or nil.
	FindByAnonymousID(ctx context.Context, anonymousID string) (*AnonymousIdentity, error)
	Save(ctx context.Context, identity *AnonymousIdentity) error
}
