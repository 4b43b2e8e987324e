package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/types"
)

// LocalTransport is an in-process Transport. Each agent inbox has its own
// lock; request state transitions are guarded per request.
type LocalTransport struct {
	mu       sync.RWMutex
	requests map[string]*localEntry
	inboxes  map[string]*localInbox
	closed   bool
	now      func() time.Time
	logger   *zap.Logger
}

type localEntry struct {
	mu         sync.Mutex
	req        Request
	resolution *Resolution
	subs       []chan *Resolution
}

type localInbox struct {
	mu  sync.Mutex
	ids []string
}

// NewLocalTransport creates a LocalTransport.
func NewLocalTransport(logger *zap.Logger) *LocalTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalTransport{
		requests: make(map[string]*localEntry),
		inboxes:  make(map[string]*localInbox),
		now:      time.Now,
		logger:   logger.With(zap.String("component", "local_transport")),
	}
}

func inboxKey(tenantID, agentID string) string {
	return tenantID + "/" + agentID
}

func (t *LocalTransport) entry(requestID string) (*localEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.requests[requestID]
	return e, ok
}

func (t *LocalTransport) inbox(key string, create bool) *localInbox {
	t.mu.RLock()
	in, ok := t.inboxes[key]
	t.mu.RUnlock()
	if ok || !create {
		return in
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if in, ok = t.inboxes[key]; !ok {
		in = &localInbox{}
		t.inboxes[key] = in
	}
	return in
}

// getOrCreate returns the entry for requestID, creating a placeholder that a
// later Send fills in. Subscribers attach to the placeholder.
func (t *LocalTransport) getOrCreate(requestID string) (*localEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, types.NewTransportError(nil, "transport closed")
	}
	e, ok := t.requests[requestID]
	if !ok {
		e = &localEntry{}
		t.requests[requestID] = e
	}
	return e, nil
}

func (t *LocalTransport) Send(_ context.Context, req *Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	e, err := t.getOrCreate(req.RequestID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.req.RequestID != "" {
		e.mu.Unlock()
		return types.NewError(types.ErrConflict, "delegation request "+req.RequestID+" already sent")
	}
	e.req = *req
	e.req.Status = StatusRequest
	if e.req.CreatedAt.IsZero() {
		e.req.CreatedAt = t.now()
	}
	e.mu.Unlock()

	in := t.inbox(inboxKey(req.TargetTenantID, req.TargetAgentID), true)
	in.mu.Lock()
	in.ids = append(in.ids, req.RequestID)
	in.mu.Unlock()

	t.logger.Debug("delegation request queued",
		zap.String("request_id", req.RequestID),
		zap.String("task_type", req.TaskType))
	return nil
}

func (t *LocalTransport) Inbox(_ context.Context, tenantID, agentID string) ([]*Request, error) {
	in := t.inbox(inboxKey(tenantID, agentID), false)
	if in == nil {
		return []*Request{}, nil
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]*Request, 0, len(in.ids))
	kept := in.ids[:0]
	for _, id := range in.ids {
		e, ok := t.entry(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.req.Status == StatusRequest {
			cp := e.req
			out = append(out, &cp)
		}
		if !e.req.Status.Terminal() {
			kept = append(kept, id)
		}
		e.mu.Unlock()
	}
	in.ids = kept
	return out, nil
}

func (t *LocalTransport) Get(_ context.Context, requestID string) (*Request, error) {
	e, ok := t.entry(requestID)
	if !ok {
		return nil, errRequestNotFound(requestID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req.RequestID == "" {
		return nil, errRequestNotFound(requestID)
	}
	cp := e.req
	return &cp, nil
}

func (t *LocalTransport) Accept(_ context.Context, requestID string) (*Request, error) {
	e, ok := t.entry(requestID)
	if !ok {
		return nil, errNotPending(requestID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req.RequestID == "" || e.req.Status != StatusRequest {
		return nil, errNotPending(requestID)
	}
	now := t.now()
	e.req.Status = StatusAccepted
	e.req.AcceptedAt = &now
	cp := e.req
	return &cp, nil
}

func (t *LocalTransport) Resolve(_ context.Context, res *Resolution, from ...Status) (*Resolution, bool, error) {
	if res == nil || !res.Status.Terminal() {
		return nil, false, types.NewValidationError("resolution must carry a terminal status")
	}
	e, ok := t.entry(res.RequestID)
	if !ok {
		return nil, false, errNotPending(res.RequestID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req.RequestID == "" {
		return nil, false, errNotPending(res.RequestID)
	}
	if e.resolution != nil {
		cp := *e.resolution
		return &cp, false, nil
	}
	if !canTransition(e.req.Status, from) {
		return nil, false, errNotPending(res.RequestID)
	}

	final := *res
	if final.ResolvedAt.IsZero() {
		final.ResolvedAt = t.now()
	}
	e.req.Status = final.Status
	e.resolution = &final
	for _, ch := range e.subs {
		// Subscriber channels are buffered and receive exactly one value.
		ch <- &final
	}
	e.subs = nil
	cp := final
	return &cp, true, nil
}

func (t *LocalTransport) Subscribe(_ context.Context, requestID string) (<-chan *Resolution, func(), error) {
	e, err := t.getOrCreate(requestID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan *Resolution, 1)

	e.mu.Lock()
	if e.resolution != nil {
		cp := *e.resolution
		ch <- &cp
	} else {
		e.subs = append(e.subs, ch)
	}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subs {
			if sub == ch {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (t *LocalTransport) Discard(_ context.Context, requestID string) error {
	t.mu.Lock()
	e, ok := t.requests[requestID]
	delete(t.requests, requestID)
	t.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	key := inboxKey(e.req.TargetTenantID, e.req.TargetAgentID)
	e.mu.Unlock()

	if in := t.inbox(key, false); in != nil {
		in.mu.Lock()
		for i, id := range in.ids {
			if id == requestID {
				in.ids = append(in.ids[:i], in.ids[i+1:]...)
				break
			}
		}
		in.mu.Unlock()
	}
	return nil
}

// Pending returns the number of requests currently tracked.
func (t *LocalTransport) Pending() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.requests)
}

func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Ensure LocalTransport implements Transport.
var _ Transport = (*LocalTransport)(nil)
