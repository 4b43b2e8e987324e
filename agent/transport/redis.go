package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/types"
)

// RedisConfig configures the Redis transport.
type RedisConfig struct {
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// DefaultRedisConfig returns the default Redis transport configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix: "agentlens:delegation:",
		Retention: time.Minute,
	}
}

// acceptScript moves status from ARGV[1] to ARGV[2] and returns the payload.
var acceptScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur ~= ARGV[1] then
  return false
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'accepted_at', ARGV[3])
return redis.call('HGET', KEYS[1], 'payload')
`)

// resolveScript sets a terminal status when the current one is listed in
// ARGV[5..]. Returns {1} on success, {-1} for a missing request, or
// {0, status, output, error, resolved_at} describing the existing outcome.
var resolveScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return {-1}
end
for i = 5, #ARGV do
  if ARGV[i] == cur then
    redis.call('HSET', KEYS[1], 'status', ARGV[1], 'output', ARGV[2], 'error', ARGV[3], 'resolved_at', ARGV[4])
    return {1}
  end
end
local f = redis.call('HMGET', KEYS[1], 'status', 'output', 'error', 'resolved_at')
return {0, f[1] or '', f[2] or '', f[3] or '', f[4] or ''}
`)

// RedisTransport is a Transport backed by Redis. Requests live in hashes,
// each inbox is a sorted set scored by creation time, and resolutions are
// broadcast over pub/sub. Delivery is best-effort.
type RedisTransport struct {
	client redis.UniversalClient
	config RedisConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewRedisTransport creates a RedisTransport over an existing client.
func NewRedisTransport(client redis.UniversalClient, config RedisConfig, logger *zap.Logger) (*RedisTransport, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultRedisConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	return &RedisTransport{
		client: client,
		config: config,
		now:    time.Now,
		logger: logger.With(zap.String("component", "redis_transport")),
	}, nil
}

func (t *RedisTransport) requestKey(id string) string {
	return t.config.KeyPrefix + "req:" + id
}

func (t *RedisTransport) inboxKey(tenantID, agentID string) string {
	return t.config.KeyPrefix + "inbox:" + tenantID + ":" + agentID
}

func (t *RedisTransport) channel(id string) string {
	return t.config.KeyPrefix + "resolved:" + id
}

func (t *RedisTransport) Send(ctx context.Context, req *Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	msg := *req
	msg.Status = StatusRequest
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.now()
	}
	payload, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ttl := time.Duration(msg.TimeoutMs)*time.Millisecond + t.config.Retention
	reqKey := t.requestKey(msg.RequestID)
	inbox := t.inboxKey(msg.TargetTenantID, msg.TargetAgentID)

	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, reqKey, "payload", payload, "status", string(StatusRequest))
		pipe.Expire(ctx, reqKey, ttl)
		pipe.ZAdd(ctx, inbox, redis.Z{Score: float64(msg.CreatedAt.UnixMilli()), Member: msg.RequestID})
		pipe.Expire(ctx, inbox, ttl)
		return nil
	})
	if err != nil {
		return types.NewTransportError(err, "send delegation request %s", msg.RequestID)
	}
	return nil
}

func (t *RedisTransport) Inbox(ctx context.Context, tenantID, agentID string) ([]*Request, error) {
	inbox := t.inboxKey(tenantID, agentID)
	ids, err := t.client.ZRange(ctx, inbox, 0, -1).Result()
	if err != nil {
		return nil, types.NewTransportError(err, "read inbox")
	}

	out := make([]*Request, 0, len(ids))
	var stale []any
	for _, id := range ids {
		req, err := t.Get(ctx, id)
		if err != nil {
			if types.IsErrorCode(err, types.ErrNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		switch {
		case req.Status == StatusRequest:
			out = append(out, req)
		case req.Status.Terminal():
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := t.client.ZRem(ctx, inbox, stale...).Err(); err != nil {
			t.logger.Warn("failed to prune inbox", zap.Error(err))
		}
	}
	return out, nil
}

func (t *RedisTransport) Get(ctx context.Context, requestID string) (*Request, error) {
	vals, err := t.client.HMGet(ctx, t.requestKey(requestID), "payload", "status", "accepted_at").Result()
	if err != nil {
		return nil, types.NewTransportError(err, "load delegation request %s", requestID)
	}
	payload, _ := vals[0].(string)
	if payload == "" {
		return nil, errRequestNotFound(requestID)
	}
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", requestID, err)
	}
	if status, _ := vals[1].(string); status != "" {
		req.Status = Status(status)
	}
	if acceptedAt, _ := vals[2].(string); acceptedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, acceptedAt); err == nil {
			req.AcceptedAt = &ts
		}
	}
	return &req, nil
}

func (t *RedisTransport) Accept(ctx context.Context, requestID string) (*Request, error) {
	now := t.now()
	res, err := acceptScript.Run(ctx, t.client, []string{t.requestKey(requestID)},
		string(StatusRequest), string(StatusAccepted), now.Format(time.RFC3339Nano)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errNotPending(requestID)
	}
	if err != nil {
		return nil, types.NewTransportError(err, "accept delegation request %s", requestID)
	}
	payload, _ := res.(string)
	if payload == "" {
		return nil, errNotPending(requestID)
	}
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", requestID, err)
	}
	req.Status = StatusAccepted
	req.AcceptedAt = &now
	return &req, nil
}

func (t *RedisTransport) Resolve(ctx context.Context, res *Resolution, from ...Status) (*Resolution, bool, error) {
	if res == nil || !res.Status.Terminal() {
		return nil, false, types.NewValidationError("resolution must carry a terminal status")
	}
	final := *res
	if final.ResolvedAt.IsZero() {
		final.ResolvedAt = t.now()
	}

	args := []any{
		string(final.Status),
		string(final.Output),
		final.Error,
		final.ResolvedAt.Format(time.RFC3339Nano),
	}
	for _, s := range from {
		args = append(args, string(s))
	}

	raw, err := resolveScript.Run(ctx, t.client, []string{t.requestKey(final.RequestID)}, args...).Slice()
	if err != nil {
		return nil, false, types.NewTransportError(err, "resolve delegation request %s", final.RequestID)
	}
	code, _ := raw[0].(int64)
	switch code {
	case 1:
		payload, err := json.Marshal(&final)
		if err != nil {
			return nil, false, fmt.Errorf("marshal resolution: %w", err)
		}
		if err := t.client.Publish(ctx, t.channel(final.RequestID), payload).Err(); err != nil {
			t.logger.Warn("failed to publish resolution",
				zap.String("request_id", final.RequestID), zap.Error(err))
		}
		return &final, true, nil
	case -1:
		return nil, false, errNotPending(final.RequestID)
	}

	existing := existingResolution(final.RequestID, raw)
	if existing == nil {
		return nil, false, errNotPending(final.RequestID)
	}
	return existing, false, nil
}

// existingResolution decodes the {0, status, output, error, resolved_at}
// reply. It returns nil while the request is still non-terminal.
func existingResolution(requestID string, raw []any) *Resolution {
	if len(raw) < 5 {
		return nil
	}
	status, _ := raw[1].(string)
	if !Status(status).Terminal() {
		return nil
	}
	out := &Resolution{RequestID: requestID, Status: Status(status)}
	if output, _ := raw[2].(string); output != "" {
		out.Output = json.RawMessage(output)
	}
	out.Error, _ = raw[3].(string)
	if ts, _ := raw[4].(string); ts != "" {
		out.ResolvedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return out
}

func (t *RedisTransport) Subscribe(ctx context.Context, requestID string) (<-chan *Resolution, func(), error) {
	ps := t.client.Subscribe(ctx, t.channel(requestID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, types.NewTransportError(err, "subscribe to delegation request %s", requestID)
	}

	out := make(chan *Resolution, 1)
	go func() {
		for msg := range ps.Channel() {
			var res Resolution
			if err := json.Unmarshal([]byte(msg.Payload), &res); err != nil {
				t.logger.Warn("dropping malformed resolution", zap.Error(err))
				continue
			}
			out <- &res
			return
		}
	}()

	cancel := func() { _ = ps.Close() }
	return out, cancel, nil
}

func (t *RedisTransport) Discard(ctx context.Context, requestID string) error {
	req, err := t.Get(ctx, requestID)
	if err != nil {
		if types.IsErrorCode(err, types.ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, t.requestKey(requestID))
		pipe.ZRem(ctx, t.inboxKey(req.TargetTenantID, req.TargetAgentID), requestID)
		return nil
	})
	if err != nil {
		return types.NewTransportError(err, "discard delegation request %s", requestID)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (t *RedisTransport) Close() error { return nil }

// Ensure RedisTransport implements Transport.
var _ Transport = (*RedisTransport)(nil)
