package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/agentkitai/agentlens/agent/delegation"
)

// LogStore is an append-only delegation log table.
type LogStore struct {
	db *gorm.DB
}

// NewLogStore creates a LogStore on db.
func NewLogStore(db *gorm.DB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) Append(ctx context.Context, entry *delegation.LogEntry) error {
	if entry == nil || entry.ID == "" || entry.TenantID == "" {
		return fmt.Errorf("append delegation log: %w", ErrInvalidInput)
	}
	if err := s.db.WithContext(ctx).Create(logEntryToModel(entry)).Error; err != nil {
		return fmt.Errorf("append delegation log: %w", err)
	}
	return nil
}

func (s *LogStore) List(ctx context.Context, tenantID string, filter delegation.LogFilter) ([]*delegation.LogEntry, error) {
	q := s.db.WithContext(ctx).Model(&DelegationLogModel{}).Where("tenant_id = ?", tenantID)
	if filter.AgentID != "" {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Direction != "" {
		q = q.Where("direction = ?", string(filter.Direction))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.TaskType != "" {
		q = q.Where("task_type = ?", string(filter.TaskType))
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at < ?", filter.Until.UTC())
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []DelegationLogModel
	if err := q.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list delegation logs: %w", err)
	}
	out := make([]*delegation.LogEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntry())
	}
	return out, nil
}

var _ delegation.LogStore = (*LogStore)(nil)
