package delegation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentkitai/agentlens/types"
)

// GetDelegationLogs returns the tenant's log entries matching filter.
func (s *Service) GetDelegationLogs(ctx context.Context, tenantID string, filter LogFilter) ([]*LogEntry, error) {
	if tenantID == "" {
		return nil, types.NewValidationError("tenantId is required")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, types.NewValidationError("limit and offset must not be negative")
	}
	entries, err := s.logs.List(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("list delegation logs: %w", err)
	}
	return entries, nil
}

// ExportDelegationLogs serializes the tenant's full log as a JSON array.
func (s *Service) ExportDelegationLogs(ctx context.Context, tenantID string) ([]byte, error) {
	entries, err := s.GetDelegationLogs(ctx, tenantID, LogFilter{})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*LogEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal delegation logs: %w", err)
	}
	return data, nil
}
