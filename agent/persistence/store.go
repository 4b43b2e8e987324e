package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agentkitai/agentlens/agent/delegation"
	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/agent/identity"
)

// Common errors
var (
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeDatabase StoreType = "database"
	StoreTypeMongo    StoreType = "mongo"
)

// StoreConfig selects the backends. LogType defaults to Type; a mongo log
// store needs a database-or-memory Type for everything else.
type StoreConfig struct {
	Type    StoreType `json:"type" yaml:"type"`
	LogType StoreType `json:"log_type" yaml:"log_type"`

	// MongoDatabase and MongoCollection locate the log collection.
	MongoDatabase   string `json:"mongo_database" yaml:"mongo_database"`
	MongoCollection string `json:"mongo_collection" yaml:"mongo_collection"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:            StoreTypeMemory,
		MongoDatabase:   "agentlens",
		MongoCollection: "delegation_logs",
	}
}

// Stores bundles the backends the services are built from.
type Stores struct {
	Capabilities discovery.CapabilityStore
	Configs      discovery.ConfigStore
	Identities   identity.Store
	Logs         delegation.LogStore
}

// Backends are the live connections a store set may need.
type Backends struct {
	DB    *gorm.DB
	Mongo *mongo.Client
}

// NewStores builds a store set for the configuration.
func NewStores(ctx context.Context, cfg StoreConfig, backends Backends, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stores := &Stores{}

	switch cfg.Type {
	case StoreTypeMemory, "":
		stores.Capabilities = discovery.NewMemoryCapabilityStore()
		stores.Configs = discovery.NewMemoryConfigStore()
		stores.Identities = identity.NewMemoryStore()
		stores.Logs = delegation.NewMemoryLogStore()
	case StoreTypeDatabase:
		if backends.DB == nil {
			return nil, fmt.Errorf("store type %s requires a database", cfg.Type)
		}
		caps := NewCapabilityStore(backends.DB, logger)
		stores.Capabilities = caps
		stores.Configs = caps
		stores.Identities = NewIdentityStore(backends.DB)
		stores.Logs = NewLogStore(backends.DB)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}

	switch cfg.LogType {
	case "", cfg.Type:
	case StoreTypeMongo:
		if backends.Mongo == nil {
			return nil, fmt.Errorf("log store type %s requires a mongo client", cfg.LogType)
		}
		logs, err := NewMongoLogStore(ctx, backends.Mongo.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err != nil {
			return nil, err
		}
		stores.Logs = logs
	case StoreTypeMemory:
		stores.Logs = delegation.NewMemoryLogStore()
	case StoreTypeDatabase:
		if backends.DB == nil {
			return nil, fmt.Errorf("log store type %s requires a database", cfg.LogType)
		}
		stores.Logs = NewLogStore(backends.DB)
	default:
		return nil, fmt.Errorf("unsupported log store type: %s", cfg.LogType)
	}

	logger.Info("stores initialized",
		zap.String("type", string(cfg.Type)),
		zap.String("log_type", string(cfg.LogType)))
	return stores, nil
}
