package delegation

import (
	"encoding/json"
	"time"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/types"
)

// Status is the terminal outcome reported to the delegating agent.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
)

// Request is the delegation tool input.
type Request struct {
	TargetAgentID   string             `json:"targetAgentId"`
	TaskType        discovery.TaskType `json:"taskType"`
	CustomType      string             `json:"customType,omitempty"`
	Input           json.RawMessage    `json:"input"`
	TimeoutMs       int64              `json:"timeoutMs,omitempty"`
	FallbackEnabled bool               `json:"fallbackEnabled,omitempty"`
	MaxRetries      *int               `json:"maxRetries,omitempty"`
}

// ResultError describes why a delegation did not succeed.
type ResultError struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// Result is the delegation tool output.
type Result struct {
	RequestID       string          `json:"requestId"`
	Status          Status          `json:"status"`
	Output          json.RawMessage `json:"output,omitempty"`
	ExecutionTimeMs int64           `json:"executionTimeMs,omitempty"`
	RetriesUsed     int             `json:"retriesUsed,omitempty"`
	Error           *ResultError    `json:"error,omitempty"`
}

// InboxItem is a pending request as seen by the target agent.
type InboxItem struct {
	RequestID            string             `json:"requestId"`
	RequesterAnonymousID string             `json:"requesterAnonymousId"`
	TargetAnonymousID    string             `json:"targetAnonymousId"`
	TaskType             discovery.TaskType `json:"taskType"`
	CustomType           string             `json:"customType,omitempty"`
	Input                json.RawMessage    `json:"input"`
	TimeoutMs            int64              `json:"timeoutMs"`
	Status               string             `json:"status"`
	CreatedAt            time.Time          `json:"createdAt"`
}

// Direction of a log entry relative to the logging tenant.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// LogEntry is one append-only audit record of a terminal delegation outcome.
type LogEntry struct {
	ID                string             `json:"id" bson:"_id"`
	TenantID          string             `json:"tenantId" bson:"tenant_id"`
	RequestID         string             `json:"requestId" bson:"request_id"`
	Direction         Direction          `json:"direction" bson:"direction"`
	AgentID           string             `json:"agentId" bson:"agent_id"`
	AnonymousTargetID string             `json:"anonymousTargetId" bson:"anonymous_target_id"`
	TaskType          discovery.TaskType `json:"taskType" bson:"task_type"`
	Status            Status             `json:"status" bson:"status"`
	ErrorCode         types.ErrorCode    `json:"errorCode,omitempty" bson:"error_code,omitempty"`
	ExecutionTimeMs   int64              `json:"executionTimeMs,omitempty" bson:"execution_time_ms,omitempty"`
	CreatedAt         time.Time          `json:"createdAt" bson:"created_at"`
	CompletedAt       time.Time          `json:"completedAt" bson:"completed_at"`
}

// LogFilter narrows a log query. Zero values match everything; entries are
// returned oldest first.
type LogFilter struct {
	AgentID   string             `json:"agentId,omitempty"`
	Direction Direction          `json:"direction,omitempty"`
	Status    Status             `json:"status,omitempty"`
	TaskType  discovery.TaskType `json:"taskType,omitempty"`
	Since     time.Time          `json:"since,omitempty"`
	Until     time.Time          `json:"until,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
}

// Matches applies everything but paging to a single entry.
func (f LogFilter) Matches(e *LogEntry) bool {
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Direction != "" && e.Direction != f.Direction {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.TaskType != "" && e.TaskType != f.TaskType {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}
