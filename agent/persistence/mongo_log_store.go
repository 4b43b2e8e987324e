package persistence

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentkitai/agentlens/agent/delegation"
)

// MongoLogStore is a delegation.LogStore backed by a MongoDB collection.
type MongoLogStore struct {
	coll *mongo.Collection
}

// NewMongoLogStore wraps coll and ensures its query index exists.
func NewMongoLogStore(ctx context.Context, coll *mongo.Collection) (*MongoLogStore, error) {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "completed_at", Value: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create delegation log index: %w", err)
	}
	return &MongoLogStore{coll: coll}, nil
}

func (s *MongoLogStore) Append(ctx context.Context, entry *delegation.LogEntry) error {
	if entry == nil || entry.ID == "" || entry.TenantID == "" {
		return fmt.Errorf("append delegation log: %w", ErrInvalidInput)
	}
	if _, err := s.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append delegation log: %w", err)
	}
	return nil
}

func (s *MongoLogStore) List(ctx context.Context, tenantID string, filter delegation.LogFilter) ([]*delegation.LogEntry, error) {
	q := bson.D{{Key: "tenant_id", Value: tenantID}}
	if filter.AgentID != "" {
		q = append(q, bson.E{Key: "agent_id", Value: filter.AgentID})
	}
	if filter.Direction != "" {
		q = append(q, bson.E{Key: "direction", Value: string(filter.Direction)})
	}
	if filter.Status != "" {
		q = append(q, bson.E{Key: "status", Value: string(filter.Status)})
	}
	if filter.TaskType != "" {
		q = append(q, bson.E{Key: "task_type", Value: string(filter.TaskType)})
	}
	created := bson.D{}
	if !filter.Since.IsZero() {
		created = append(created, bson.E{Key: "$gte", Value: filter.Since.UTC()})
	}
	if !filter.Until.IsZero() {
		created = append(created, bson.E{Key: "$lt", Value: filter.Until.UTC()})
	}
	if len(created) > 0 {
		q = append(q, bson.E{Key: "created_at", Value: created})
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "completed_at", Value: 1},
		{Key: "created_at", Value: 1},
	})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("list delegation logs: %w", err)
	}
	out := make([]*delegation.LogEntry, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode delegation logs: %w", err)
	}
	for _, e := range out {
		e.CreatedAt = e.CreatedAt.UTC()
		e.CompletedAt = e.CompletedAt.UTC()
	}
	return out, nil
}

var _ delegation.LogStore = (*MongoLogStore)(nil)
