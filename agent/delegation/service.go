package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/agent/identity"
	"github.com/agentkitai/agentlens/agent/transport"
	"github.com/agentkitai/agentlens/types"
)

const instrumentationName = "github.com/agentkitai/agentlens/agent/delegation"

// Config holds delegation protocol limits.
type Config struct {
	// DefaultTimeout applies when a request omits timeoutMs.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps timeoutMs.
	MaxTimeout time.Duration `json:"max_timeout"`

	// DefaultMaxRetries applies to fallback requests that omit maxRetries.
	DefaultMaxRetries int `json:"default_max_retries"`

	// MaxRetriesCap caps maxRetries.
	MaxRetriesCap int `json:"max_retries_cap"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout:    30 * time.Second,
		MaxTimeout:        5 * time.Minute,
		DefaultMaxRetries: 1,
		MaxRetriesCap:     5,
	}
}

// IdentityService is the privileged identity view: anonymization plus
// reverse lookup for routing.
type IdentityService interface {
	identity.Anonymizer
	identity.Resolver
}

// Observer receives delegation measurements.
type Observer interface {
	ObserveDelegation(ctx context.Context, taskType, status string, elapsed time.Duration)
	ObserveInFlight(ctx context.Context, delta int64)
}

type nopObserver struct{}

func (nopObserver) ObserveDelegation(context.Context, string, string, time.Duration) {}
func (nopObserver) ObserveInFlight(context.Context, int64)                          {}

// Dependencies are the collaborators a Service is built from.
type Dependencies struct {
	Transport  transport.Transport
	Discovery  *discovery.Service
	Registry   *discovery.CapabilityRegistry
	Identities IdentityService
	Logs       LogStore
	Observer   Observer
	Tracer     trace.Tracer
}

// Service drives the delegation protocol.
type Service struct {
	transport  transport.Transport
	discovery  *discovery.Service
	registry   *discovery.CapabilityRegistry
	identities IdentityService
	logs       LogStore
	observer   Observer
	tracer     trace.Tracer
	config     *Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a delegation service. The transport, discovery service,
// registry and identity service are required.
func NewService(deps Dependencies, config *Config, logger *zap.Logger) (*Service, error) {
	switch {
	case deps.Transport == nil:
		return nil, errors.New("delegation: transport is required")
	case deps.Discovery == nil:
		return nil, errors.New("delegation: discovery service is required")
	case deps.Registry == nil:
		return nil, errors.New("delegation: capability registry is required")
	case deps.Identities == nil:
		return nil, errors.New("delegation: identity service is required")
	}
	if deps.Logs == nil {
		deps.Logs = NewMemoryLogStore()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(instrumentationName)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		transport:  deps.Transport,
		discovery:  deps.Discovery,
		registry:   deps.Registry,
		identities: deps.Identities,
		logs:       deps.Logs,
		observer:   deps.Observer,
		tracer:     deps.Tracer,
		config:     config,
		logger:     logger.With(zap.String("component", "delegation_service")),
		now:        time.Now,
	}, nil
}

// attempt is the bookkeeping for one request sent to one target.
type attempt struct {
	requestID        string
	tenantID         string
	requesterAgentID string
	requesterAnonID  string
	targetAnonID     string
	targetTenantID   string
	targetAgentID    string
	taskType         discovery.TaskType
	createdAt        time.Time
}

// Delegate hands a task to the target agent and waits for its outcome. It
// never returns an error; every failure is reported through Result.Status.
func (s *Service) Delegate(ctx context.Context, tenantID, requesterAgentID string, req Request) *Result {
	ctx, span := s.tracer.Start(ctx, "delegation.delegate",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("task.type", string(req.TaskType)),
			attribute.Bool("fallback.enabled", req.FallbackEnabled)))
	defer span.End()

	res := s.delegate(ctx, tenantID, requesterAgentID, req)
	span.SetAttributes(
		attribute.String("delegation.status", string(res.Status)),
		attribute.Int("delegation.retries_used", res.RetriesUsed))
	return res
}

func (s *Service) delegate(ctx context.Context, tenantID, requesterAgentID string, req Request) *Result {
	timeout, maxRetries, err := s.normalize(tenantID, requesterAgentID, &req)
	if err != nil {
		// Nothing was created, so nothing is logged.
		return failure(uuid.NewString(), StatusError, err)
	}

	first := &attempt{
		requestID:        uuid.NewString(),
		tenantID:         tenantID,
		requesterAgentID: requesterAgentID,
		targetAnonID:     req.TargetAgentID,
		taskType:         req.TaskType,
		createdAt:        s.now(),
	}

	policy, err := s.discovery.GetDiscoveryConfig(ctx, tenantID)
	if err != nil {
		return s.finish(ctx, first, failure(first.requestID, StatusError, err))
	}
	if !policy.DelegationEnabled {
		return s.finish(ctx, first, failure(first.requestID, StatusRejected,
			types.NewPermissionError("delegation is disabled for this tenant")))
	}

	limit, err := s.discovery.OutboundLimitFor(ctx, tenantID, requesterAgentID)
	if err == nil {
		err = s.discovery.CheckOutboundRateLimit(ctx, tenantID, requesterAgentID, limit)
	}
	if err != nil {
		return s.finish(ctx, first, failure(first.requestID, StatusError, err))
	}

	requesterAnonID, err := s.identities.GetOrRotateAnonymousID(ctx, tenantID, requesterAgentID)
	if err != nil {
		return s.finish(ctx, first, failure(first.requestID, StatusError, err))
	}
	first.requesterAnonID = requesterAnonID

	tried := []string{requesterAnonID, req.TargetAgentID}
	current := first
	retries := 0
	for {
		res, scope := s.run(ctx, current, &req, timeout)
		if res.Status != StatusTimeout || !req.FallbackEnabled || retries >= maxRetries {
			res.RetriesUsed = retries
			return res
		}

		next, err := s.nextCandidate(ctx, tenantID, &req, scope, tried)
		if err != nil || next == "" {
			s.logger.Debug("no fallback candidate",
				zap.String("tenant_id", tenantID),
				zap.Int("retries_used", retries),
				zap.Error(err))
			res.RetriesUsed = retries
			return res
		}

		retries++
		tried = append(tried, next)
		s.logger.Info("delegation timed out, falling back",
			zap.String("tenant_id", tenantID),
			zap.String("request_id", current.requestID),
			zap.Int("retry", retries))

		current = &attempt{
			requestID:        uuid.NewString(),
			tenantID:         tenantID,
			requesterAgentID: requesterAgentID,
			requesterAnonID:  requesterAnonID,
			targetAnonID:     next,
			taskType:         req.TaskType,
			createdAt:        s.now(),
		}
	}
}

// normalize validates the request and resolves the effective timeout and retry count.
func (s *Service) normalize(tenantID, requesterAgentID string, req *Request) (time.Duration, int, error) {
	if tenantID == "" || requesterAgentID == "" {
		return 0, 0, types.NewValidationError("tenantId and requester agentId are required")
	}
	if req.TargetAgentID == "" {
		return 0, 0, types.NewValidationError("targetAgentId is required")
	}
	if req.TaskType == "" {
		return 0, 0, types.NewValidationError("taskType is required")
	}
	if !req.TaskType.Valid() {
		return 0, 0, types.NewValidationError("unknown taskType %q", req.TaskType)
	}
	if len(req.Input) == 0 || string(req.Input) == "null" {
		return 0, 0, types.NewValidationError("input is required")
	}
	if !json.Valid(req.Input) {
		return 0, 0, types.NewValidationError("input must be valid JSON")
	}
	if req.TimeoutMs < 0 {
		return 0, 0, types.NewValidationError("timeoutMs must not be negative")
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = s.config.DefaultTimeout
	}
	if s.config.MaxTimeout > 0 && timeout > s.config.MaxTimeout {
		timeout = s.config.MaxTimeout
	}

	maxRetries := s.config.DefaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return 0, 0, types.NewValidationError("maxRetries must not be negative")
		}
		maxRetries = *req.MaxRetries
	}
	if maxRetries > s.config.MaxRetriesCap {
		maxRetries = s.config.MaxRetriesCap
	}
	return timeout, maxRetries, nil
}

// run performs one send-and-wait against a.targetAnonID. The returned scope
// is the target capability's scope, used to pick fallback candidates.
func (s *Service) run(ctx context.Context, a *attempt, req *Request, timeout time.Duration) (*Result, discovery.Scope) {
	targetTenantID, targetAgentID, err := s.identities.Resolve(ctx, a.targetAnonID)
	if err != nil {
		return s.finish(ctx, a, failure(a.requestID, StatusError, err)), ""
	}
	capability, err := s.registry.FindForTask(ctx, targetTenantID, targetAgentID, req.TaskType, req.CustomType)
	if err != nil || !capability.Enabled || (targetTenantID != a.tenantID && capability.Scope != discovery.ScopeExternal) {
		return s.finish(ctx, a, failure(a.requestID, StatusError,
			types.NewNotFoundError("target agent %s not found", a.targetAnonID))), ""
	}
	a.targetTenantID, a.targetAgentID = targetTenantID, targetAgentID

	if err := s.discovery.CheckInboundRateLimit(ctx, targetTenantID, targetAgentID, capability.InboundRateLimit); err != nil {
		return s.finish(ctx, a, failure(a.requestID, StatusError, err)), capability.Scope
	}

	cleanupCtx := context.WithoutCancel(ctx)
	resolved, unsubscribe, err := s.transport.Subscribe(ctx, a.requestID)
	if err != nil {
		return s.finish(ctx, a, failure(a.requestID, StatusError, asTransportError(err))), capability.Scope
	}
	defer unsubscribe()
	defer func() {
		if err := s.transport.Discard(cleanupCtx, a.requestID); err != nil {
			s.logger.Warn("failed to discard delegation request", zap.String("request_id", a.requestID), zap.Error(err))
		}
	}()

	err = s.transport.Send(ctx, &transport.Request{
		RequestID:            a.requestID,
		RequesterTenantID:    a.tenantID,
		RequesterAnonymousID: a.requesterAnonID,
		TargetAnonymousID:    a.targetAnonID,
		TargetTenantID:       targetTenantID,
		TargetAgentID:        targetAgentID,
		TaskType:             string(req.TaskType),
		CustomType:           req.CustomType,
		Input:                req.Input,
		TimeoutMs:            timeout.Milliseconds(),
		CreatedAt:            a.createdAt,
	})
	if err != nil {
		return s.finish(ctx, a, failure(a.requestID, StatusError, asTransportError(err))), capability.Scope
	}

	s.observer.ObserveInFlight(ctx, 1)
	defer s.observer.ObserveInFlight(cleanupCtx, -1)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res *Result
	select {
	case final := <-resolved:
		res = s.fromResolution(a, final)
	case <-timer.C:
		res = s.expire(cleanupCtx, a, transport.StatusTimeout,
			types.NewTimeoutError("no response within %s", timeout))
	case <-ctx.Done():
		res = s.expire(cleanupCtx, a, transport.StatusError,
			types.NewError(types.ErrInternalError, "delegation cancelled").WithCause(ctx.Err()))
	}
	return s.finish(ctx, a, res), capability.Scope
}

// expire races the target for the terminal state. If the target resolved
// first its outcome wins.
func (s *Service) expire(ctx context.Context, a *attempt, status transport.Status, cause *types.Error) *Result {
	final, won, err := s.transport.Resolve(ctx, &transport.Resolution{
		RequestID: a.requestID,
		Status:    status,
		Error:     cause.Message,
	}, transport.AllowedFrom(status)...)
	if err == nil && !won && final != nil {
		return s.fromResolution(a, final)
	}
	if err != nil {
		s.logger.Warn("failed to record delegation expiry", zap.String("request_id", a.requestID), zap.Error(err))
	}
	if status == transport.StatusTimeout {
		return failure(a.requestID, StatusTimeout, cause)
	}
	return failure(a.requestID, StatusError, cause)
}

func (s *Service) fromResolution(a *attempt, final *transport.Resolution) *Result {
	res := &Result{RequestID: a.requestID}
	switch final.Status {
	case transport.StatusCompleted:
		res.Status = StatusSuccess
		res.Output = final.Output
		res.ExecutionTimeMs = s.now().Sub(a.createdAt).Milliseconds()
	case transport.StatusRejected:
		res.Status = StatusRejected
		res.Error = &ResultError{Code: types.ErrPermissionDenied, Message: orDefault(final.Error, "delegation rejected by target")}
	case transport.StatusTimeout:
		res.Status = StatusTimeout
		res.Error = &ResultError{Code: types.ErrTimeout, Message: orDefault(final.Error, "delegation timed out")}
	default:
		res.Status = StatusError
		res.Error = &ResultError{Code: types.ErrTaskFailed, Message: orDefault(final.Error, "delegated task failed")}
	}
	return res
}

func (s *Service) nextCandidate(ctx context.Context, tenantID string, req *Request, scope discovery.Scope, tried []string) (string, error) {
	if scope == "" {
		scope = discovery.ScopeInternal
	}
	found, err := s.discovery.Discover(ctx, tenantID, discovery.Query{
		TaskType:            req.TaskType,
		CustomType:          req.CustomType,
		Scope:               scope,
		Limit:               1,
		ExcludeAnonymousIDs: tried,
	})
	if err != nil {
		return "", err
	}
	if len(found.Results) == 0 {
		return "", nil
	}
	return found.Results[0].AnonymousAgentID, nil
}

// finish records the terminal outcome of an attempt and returns res.
func (s *Service) finish(ctx context.Context, a *attempt, res *Result) *Result {
	completedAt := s.now()
	s.observer.ObserveDelegation(ctx, string(a.taskType), string(res.Status), completedAt.Sub(a.createdAt))

	entry := &LogEntry{
		ID:                uuid.NewString(),
		TenantID:          a.tenantID,
		RequestID:         a.requestID,
		Direction:         DirectionOutbound,
		AgentID:           a.requesterAgentID,
		AnonymousTargetID: a.targetAnonID,
		TaskType:          a.taskType,
		Status:            res.Status,
		ExecutionTimeMs:   res.ExecutionTimeMs,
		CreatedAt:         a.createdAt,
		CompletedAt:       completedAt,
	}
	if res.Error != nil {
		entry.ErrorCode = res.Error.Code
	}
	s.appendLog(context.WithoutCancel(ctx), entry)

	if a.targetTenantID != "" && a.targetTenantID != a.tenantID {
		inbound := *entry
		inbound.ID = uuid.NewString()
		inbound.TenantID = a.targetTenantID
		inbound.Direction = DirectionInbound
		inbound.AgentID = a.targetAgentID
		s.appendLog(context.WithoutCancel(ctx), &inbound)
	}

	fields := []zap.Field{
		zap.String("tenant_id", a.tenantID),
		zap.String("request_id", a.requestID),
		zap.String("task_type", string(a.taskType)),
		zap.String("status", string(res.Status)),
	}
	if res.Error != nil {
		fields = append(fields, zap.String("error_code", string(res.Error.Code)))
	}
	if res.Status == StatusSuccess {
		s.logger.Info("delegation completed", fields...)
	} else {
		s.logger.Warn("delegation did not succeed", fields...)
	}
	return res
}

func (s *Service) appendLog(ctx context.Context, entry *LogEntry) {
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append delegation log",
			zap.String("tenant_id", entry.TenantID),
			zap.String("request_id", entry.RequestID),
			zap.Error(err))
	}
}

func failure(requestID string, status Status, err error) *Result {
	res := &Result{RequestID: requestID, Status: status}
	if e, ok := types.AsError(err); ok {
		res.Error = &ResultError{Code: e.Code, Message: e.Message}
	} else {
		res.Error = &ResultError{Code: types.ErrInternalError, Message: err.Error()}
	}
	return res
}

func asTransportError(err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewTransportError(err, "delegation transport failure")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
