package transport

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/agentkitai/agentlens/types"
)

// Status is the lifecycle state of a request held by the transport.
type Status string

const (
	StatusRequest   Status = "request"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusTimeout, StatusError:
		return true
	}
	return false
}

// Request is a pending delegation addressed to one target agent.
type Request struct {
	RequestID            string          `json:"requestId"`
	RequesterTenantID    string          `json:"requesterTenantId"`
	RequesterAnonymousID string          `json:"requesterAnonymousId"`
	TargetAnonymousID    string          `json:"targetAnonymousId"`
	TargetTenantID       string          `json:"targetTenantId"`
	TargetAgentID        string          `json:"targetAgentId"`
	TaskType             string          `json:"taskType"`
	CustomType           string          `json:"customType,omitempty"`
	Input                json.RawMessage `json:"input"`
	TimeoutMs            int64           `json:"timeoutMs"`
	Status               Status          `json:"status"`
	CreatedAt            time.Time       `json:"createdAt"`
	AcceptedAt           *time.Time      `json:"acceptedAt,omitempty"`
}

// Resolution is the terminal outcome of a request.
type Resolution struct {
	RequestID  string          `json:"requestId"`
	Status     Status          `json:"status"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}

// Transport moves delegation requests to target inboxes and reports their
// outcome back to the waiting caller.
type Transport interface {
	// Send places req in the target agent's inbox with status request.
	Send(ctx context.Context, req *Request) error
	// Inbox lists requests for the agent that still have status request,
	// oldest first.
	Inbox(ctx context.Context, tenantID, agentID string) ([]*Request, error)
	// Get returns a request that has not been discarded.
	Get(ctx context.Context, requestID string) (*Request, error)
	// Accept atomically moves a request from request to accepted.
	Accept(ctx context.Context, requestID string) (*Request, error)
	// Resolve atomically moves a request into res.Status if its current
	// status is one of from. It returns the winning resolution and whether
	// this call produced it.
	Resolve(ctx context.Context, res *Resolution, from ...Status) (*Resolution, bool, error)
	// Subscribe returns a channel that receives the request's resolution.
	// Call it before Send. The returned func releases the subscription.
	Subscribe(ctx context.Context, requestID string) (<-chan *Resolution, func(), error)
	// Discard drops all bookkeeping for the request.
	Discard(ctx context.Context, requestID string) error
	Close() error
}

// AllowedFrom returns the statuses from which a request may move into to.
func AllowedFrom(to Status) []Status {
	switch to {
	case StatusCompleted:
		return []Status{StatusAccepted}
	case StatusRejected, StatusTimeout:
		return []Status{StatusRequest, StatusAccepted}
	case StatusError:
		return []Status{StatusRequest, StatusAccepted}
	}
	return nil
}

func canTransition(cur Status, from []Status) bool {
	return slices.Contains(from, cur)
}

func errRequestNotFound(requestID string) error {
	return types.NewNotFoundError("delegation request %s not found", requestID)
}

func errNotPending(requestID string) error {
	return types.NewNotFoundError("delegation request %s not found or already resolved", requestID)
}

func validateRequest(req *Request) error {
	if req == nil || req.RequestID == "" {
		return types.NewValidationError("request id is required")
	}
	if req.TargetTenantID == "" || req.TargetAgentID == "" {
		return types.NewValidationError("request %s has no routable target", req.RequestID)
	}
	return nil
}
