package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/agentkitai/agentlens/types"
)

// Config controls identity rotation.
type Config struct {
	// TTL is the validity window of a minted anonymous ID.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
	// ResolveGrace keeps superseded IDs resolvable for a while after expiry.
	ResolveGrace time.Duration `json:"resolve_grace" yaml:"resolve_grace"`
}

// DefaultConfig returns the default identity configuration.
func DefaultConfig() Config {
	return Config{
		TTL:          24 * time.Hour,
		ResolveGrace: 5 * time.Minute,
	}
}

// Manager issues, rotates and resolves anonymous identities.
type Manager struct {
	store  Store
	config Config
	group  singleflight.Group
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates an identity manager. A nil store falls back to memory.
func NewManager(store Store, config Config, logger *zap.Logger, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.ResolveGrace < 0 {
		config.ResolveGrace = 0
	}
	m := &Manager{
		store:  store,
		config: config,
		now:    time.Now,
		logger: logger.With(zap.String("component", "identity_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrRotateAnonymousID returns the agent's current anonymous ID, minting a
// new one when none exists or the current one has expired.
func (m *Manager) GetOrRotateAnonymousID(ctx context.Context, tenantID, agentID string) (string, error) {
	if tenantID == "" || agentID == "" {
		return "", types.NewValidationError("tenantId and agentId are required")
	}

	// Concurrent lookups for the same agent share one mint.
	key := tenantID + "\x00" + agentID
	v, err, _ := m.group.Do(key, func() (any, error) {
		now := m.now()
		current, err := m.store.Latest(ctx, tenantID, agentID)
		if err != nil {
			return "", fmt.Errorf("load identity: %w", err)
		}
		if current != nil && current.ValidAt(now) {
			return current.AnonymousID, nil
		}

		next := &AnonymousIdentity{
			AnonymousID: uuid.NewString(),
			TenantID:    tenantID,
			AgentID:     agentID,
			ValidFrom:   now,
			ValidUntil:  now.Add(m.config.TTL),
		}
		if err := m.store.Save(ctx, next); err != nil {
			return "", fmt.Errorf("save identity: %w", err)
		}
		if current != nil {
			m.logger.Debug("anonymous identity rotated",
				zap.String("tenant_id", tenantID),
				zap.Time("previous_valid_until", current.ValidUntil))
		}
		return next.AnonymousID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Resolve returns the owner of anonymousID. IDs past their validity window
// (plus the resolve grace) are reported as not found.
func (m *Manager) Resolve(ctx context.Context, anonymousID string) (string, string, error) {
	if anonymousID == "" {
		return "", "", types.NewValidationError("anonymous agent id is required")
	}
	found, err := m.store.FindByAnonymousID(ctx, anonymousID)
	if err != nil {
		return "", "", fmt.Errorf("resolve identity: %w", err)
	}
	if found == nil || !m.now().Before(found.ValidUntil.Add(m.config.ResolveGrace)) {
		return "", "", types.NewNotFoundError("agent %s not found", anonymousID)
	}
	return found.TenantID, found.AgentID, nil
}

var (
	_ Anonymizer = (*Manager)(nil)
	_ Resolver   = (*Manager)(nil)
)
