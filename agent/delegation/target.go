package delegation

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/agent/transport"
	"github.com/agentkitai/agentlens/types"
)

// =============================================================================
// Target-side operations
// =============================================================================

// GetInbox lists pending requests addressed to the agent, oldest first.
func (s *Service) GetInbox(ctx context.Context, tenantID, agentID string) ([]InboxItem, error) {
	if tenantID == "" || agentID == "" {
		return nil, types.NewValidationError("tenantId and agentId are required")
	}
	pending, err := s.transport.Inbox(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}
	items := make([]InboxItem, 0, len(pending))
	for _, r := range pending {
		items = append(items, InboxItem{
			RequestID:            r.RequestID,
			RequesterAnonymousID: r.RequesterAnonymousID,
			TargetAnonymousID:    r.TargetAnonymousID,
			TaskType:             discovery.TaskType(r.TaskType),
			CustomType:           r.CustomType,
			Input:                r.Input,
			TimeoutMs:            r.TimeoutMs,
			Status:               string(r.Status),
			CreatedAt:            r.CreatedAt,
		})
	}
	return items, nil
}

// AcceptDelegation claims a pending request. Only one caller can win.
func (s *Service) AcceptDelegation(ctx context.Context, tenantID, agentID, requestID string) error {
	req, err := s.loadForTarget(ctx, tenantID, agentID, requestID)
	if err != nil {
		return err
	}
	if req.Status != transport.StatusRequest {
		return types.NewNotFoundError("delegation request %s not found or already resolved", requestID)
	}

	capability, err := s.registry.FindForTask(ctx, tenantID, agentID, discovery.TaskType(req.TaskType), req.CustomType)
	if err != nil || !capability.AcceptDelegations {
		return types.NewPermissionError("agent %s does not accept delegations for %s", agentID, req.TaskType)
	}

	if _, err := s.transport.Accept(ctx, requestID); err != nil {
		return err
	}
	s.logger.Info("delegation accepted",
		zap.String("tenant_id", tenantID),
		zap.String("agent_id", agentID),
		zap.String("request_id", requestID))
	return nil
}

// CompleteDelegation delivers the output of an accepted request.
func (s *Service) CompleteDelegation(ctx context.Context, tenantID, agentID, requestID string, output json.RawMessage) error {
	if len(output) == 0 {
		output = json.RawMessage("null")
	}
	if !json.Valid(output) {
		return types.NewValidationError("output must be valid JSON")
	}
	req, err := s.loadForTarget(ctx, tenantID, agentID, requestID)
	if err != nil {
		return err
	}
	if req.Status == transport.StatusRequest {
		return types.NewValidationError("delegation request %s must be accepted before completion", requestID)
	}

	if err := s.resolve(ctx, &transport.Resolution{
		RequestID: requestID,
		Status:    transport.StatusCompleted,
		Output:    output,
	}, transport.StatusAccepted); err != nil {
		return err
	}
	s.recordOutcome(ctx, req, true)
	return nil
}

// RejectDelegation declines a request that has not finished yet.
func (s *Service) RejectDelegation(ctx context.Context, tenantID, agentID, requestID, reason string) error {
	if _, err := s.loadForTarget(ctx, tenantID, agentID, requestID); err != nil {
		return err
	}
	return s.resolve(ctx, &transport.Resolution{
		RequestID: requestID,
		Status:    transport.StatusRejected,
		Error:     reason,
	}, transport.AllowedFrom(transport.StatusRejected)...)
}

// FailDelegation reports that an accepted request could not be executed.
func (s *Service) FailDelegation(ctx context.Context, tenantID, agentID, requestID, message string) error {
	req, err := s.loadForTarget(ctx, tenantID, agentID, requestID)
	if err != nil {
		return err
	}
	if req.Status == transport.StatusRequest {
		return types.NewValidationError("delegation request %s must be accepted before it can fail", requestID)
	}
	if err := s.resolve(ctx, &transport.Resolution{
		RequestID: requestID,
		Status:    transport.StatusError,
		Error:     message,
	}, transport.StatusAccepted); err != nil {
		return err
	}
	s.recordOutcome(ctx, req, false)
	return nil
}

// loadForTarget fetches a request and hides it from anyone but its target.
func (s *Service) loadForTarget(ctx context.Context, tenantID, agentID, requestID string) (*transport.Request, error) {
	if tenantID == "" || agentID == "" || requestID == "" {
		return nil, types.NewValidationError("tenantId, agentId and requestId are required")
	}
	req, err := s.transport.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.TargetTenantID != tenantID || req.TargetAgentID != agentID {
		return nil, types.NewNotFoundError("delegation request %s not found", requestID)
	}
	return req, nil
}

func (s *Service) resolve(ctx context.Context, res *transport.Resolution, from ...transport.Status) error {
	_, won, err := s.transport.Resolve(ctx, res, from...)
	if err != nil {
		return err
	}
	if !won {
		// Lost to a timeout or another terminal call; the caller has moved on.
		return types.NewNotFoundError("delegation request %s not found or already resolved", res.RequestID)
	}
	return nil
}

func (s *Service) recordOutcome(ctx context.Context, req *transport.Request, success bool) {
	capability, err := s.registry.FindForTask(ctx, req.TargetTenantID, req.TargetAgentID,
		discovery.TaskType(req.TaskType), req.CustomType)
	if err == nil {
		err = s.registry.RecordOutcome(ctx, capability.ID, success)
	}
	if err != nil {
		s.logger.Warn("failed to record capability outcome",
			zap.String("request_id", req.RequestID), zap.Error(err))
	}
}
