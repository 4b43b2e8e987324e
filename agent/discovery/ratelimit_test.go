package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowLimiter_AllowsUpToLimit(t *testing.T) {
	l := NewFixedWindowLimiter(time.Minute)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "k", 5)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}
	ok, err := l.Allow(ctx, "k", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "other", 5)
	assert.True(t, ok, "keys are independent")
}

func TestFixedWindowLimiter_ResetsAfterWindow(t *testing.T) {
	l := NewFixedWindowLimiter(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "k", 2)
	l.Allow(ctx, "k", 2)
	ok, _ := l.Allow(ctx, "k", 2)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "k", 2)
	assert.True(t, ok)
}

func TestFixedWindowLimiter_UnlimitedWhenNonPositive(t *testing.T) {
	l := NewFixedWindowLimiter(time.Minute)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow(context.Background(), "k", 0)
		assert.True(t, ok)
	}
}

func TestFixedWindowLimiter_ConcurrentCallersShareQuota(t *testing.T) {
	l := NewFixedWindowLimiter(time.Minute)
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(context.Background(), "k", 10); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

// The (N+1)-th call within a window is always rejected.
func TestProperty_FixedWindowRejectsNPlusOne(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("exactly limit calls pass within one window", prop.ForAll(
		func(limit int) bool {
			l := NewFixedWindowLimiter(time.Hour)
			ctx := context.Background()
			for i := 0; i < limit; i++ {
				if ok, _ := l.Allow(ctx, "agent", limit); !ok {
					return false
				}
			}
			ok, _ := l.Allow(ctx, "agent", limit)
			return !ok
		},
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

func newTestRedisLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, "", time.Minute), mr
}

func TestRedisRateLimiter_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "outbound:t:a", 3)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "outbound:t:a", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRateLimiter_NewWindowResets(t *testing.T) {
	l, _ := newTestRedisLimiter(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k", 1)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k", 1)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "k", 1)
	assert.True(t, ok)
}

func TestRedisRateLimiter_SetsExpiry(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	_, err := l.Allow(context.Background(), "k", 5)
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

func TestRedisRateLimiter_ErrorWhenUnavailable(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	mr.Close()
	_, err := l.Allow(context.Background(), "k", 5)
	assert.Error(t, err)
}
