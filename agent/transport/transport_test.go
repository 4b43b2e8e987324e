package transport

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentkitai/agentlens/types"
)

func newLocal(t *testing.T) Transport {
	t.Helper()
	return NewLocalTransport(zap.NewNop())
}

func newRedis(t *testing.T) Transport {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tr, err := NewRedisTransport(client, DefaultRedisConfig(), zap.NewNop())
	require.NoError(t, err)
	return tr
}

var implementations = map[string]func(t *testing.T) Transport{
	"local": newLocal,
	"redis": newRedis,
}

func sampleRequest(id, agentID string) *Request {
	return &Request{
		RequestID:            id,
		RequesterTenantID:    "tenant-1",
		RequesterAnonymousID: "anon-req",
		TargetAnonymousID:    "anon-" + agentID,
		TargetTenantID:       "tenant-1",
		TargetAgentID:        agentID,
		TaskType:             "code-review",
		Input:                json.RawMessage(`{"code":"x := 1"}`),
		TimeoutMs:            5000,
	}
}

func TestTransport_SendAndInbox(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			ctx := context.Background()

			require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))
			require.NoError(t, tr.Send(ctx, sampleRequest("r2", "worker-1")))
			require.NoError(t, tr.Send(ctx, sampleRequest("r3", "worker-2")))

			inbox, err := tr.Inbox(ctx, "tenant-1", "worker-1")
			require.NoError(t, err)
			require.Len(t, inbox, 2)
			assert.Equal(t, StatusRequest, inbox[0].Status)
			assert.JSONEq(t, `{"code":"x := 1"}`, string(inbox[0].Input))

			empty, err := tr.Inbox(ctx, "tenant-1", "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestTransport_AcceptedRequestsLeaveInbox(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			ctx := context.Background()

			require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))
			accepted, err := tr.Accept(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, StatusAccepted, accepted.Status)
			assert.NotNil(t, accepted.AcceptedAt)

			inbox, err := tr.Inbox(ctx, "tenant-1", "worker-1")
			require.NoError(t, err)
			assert.Empty(t, inbox)

			got, err := tr.Get(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, StatusAccepted, got.Status)
		})
	}
}

func TestTransport_ConcurrentAcceptExactlyOneWins(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			ctx := context.Background()
			require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))

			var wins atomic.Int32
			var g errgroup.Group
			for i := 0; i < 16; i++ {
				g.Go(func() error {
					if _, err := tr.Accept(ctx, "r1"); err == nil {
						wins.Add(1)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestTransport_ResolveNotifiesSubscriber(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			ctx := context.Background()

			ch, cancel, err := tr.Subscribe(ctx, "r1")
			require.NoError(t, err)
			defer cancel()

			require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))
			_, err = tr.Accept(ctx, "r1")
			require.NoError(t, err)

			final, won, err := tr.Resolve(ctx, &Resolution{
				RequestID: "r1",
				Status:    StatusCompleted,
				Output:    json.RawMessage(`{"approved":true}`),
			}, AllowedFrom(StatusCompleted)...)
			require.NoError(t, err)
			assert.True(t, won)
			assert.Equal(t, StatusCompleted, final.Status)

			select {
			case res := <-ch:
				assert.Equal(t, StatusCompleted, res.Status)
				assert.JSONEq(t, `{"approved":true}`, string(res.Output))
			case <-time.After(2 * time.Second):
				t.Fatal("resolution not delivered")
			}
		})
	}
}

func TestTransport_CompleteRequiresAccept(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			ctx := context.Background()
			require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))

			_, _, err := tr.Resolve(ctx, &Resolution{RequestID: "r1", Status: StatusCompleted},
				AllowedFrom(StatusCompleted)...)
			assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
		})
	}
}

func TestTransport_LosingResolveReturnsWinner(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			ctx := context.Background()
			require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))
			_, err := tr.Accept(ctx, "r1")
			require.NoError(t, err)

			_, won, err := tr.Resolve(ctx, &Resolution{
				RequestID: "r1",
				Status:    StatusCompleted,
				Output:    json.RawMessage(`{"ok":1}`),
			}, AllowedFrom(StatusCompleted)...)
			require.NoError(t, err)
			require.True(t, won)

			final, won, err := tr.Resolve(ctx, &Resolution{RequestID: "r1", Status: StatusTimeout},
				AllowedFrom(StatusTimeout)...)
			require.NoError(t, err)
			assert.False(t, won)
			assert.Equal(t, StatusCompleted, final.Status)
			assert.JSONEq(t, `{"ok":1}`, string(final.Output))
		})
	}
}

func TestTransport_DiscardForgetsRequest(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			ctx := context.Background()
			require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))
			require.NoError(t, tr.Discard(ctx, "r1"))

			_, err := tr.Get(ctx, "r1")
			assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

			_, err = tr.Accept(ctx, "r1")
			assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

			inbox, err := tr.Inbox(ctx, "tenant-1", "worker-1")
			require.NoError(t, err)
			assert.Empty(t, inbox)

			assert.NoError(t, tr.Discard(ctx, "r1"))
		})
	}
}

func TestTransport_SendValidation(t *testing.T) {
	for name, factory := range implementations {
		t.Run(name, func(t *testing.T) {
			tr := factory(t)
			err := tr.Send(context.Background(), &Request{RequestID: "r1"})
			assert.True(t, types.IsErrorCode(err, types.ErrValidation))
		})
	}
}

func TestLocalTransport_ClosedRejectsSend(t *testing.T) {
	tr := NewLocalTransport(nil)
	require.NoError(t, tr.Close())

	err := tr.Send(context.Background(), sampleRequest("r1", "worker-1"))
	assert.True(t, types.IsErrorCode(err, types.ErrTransport))
}

func TestLocalTransport_DiscardReleasesBookkeeping(t *testing.T) {
	tr := NewLocalTransport(nil)
	ctx := context.Background()

	_, cancel, err := tr.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer cancel()
	require.NoError(t, tr.Send(ctx, sampleRequest("r1", "worker-1")))
	assert.Equal(t, 1, tr.Pending())

	require.NoError(t, tr.Discard(ctx, "r1"))
	assert.Equal(t, 0, tr.Pending())
}

func TestRedisTransport_RequiresClient(t *testing.T) {
	_, err := NewRedisTransport(nil, DefaultRedisConfig(), nil)
	assert.Error(t, err)
}
