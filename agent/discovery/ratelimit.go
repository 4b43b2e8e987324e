package discovery

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts calls per key in fixed windows. Every call is counted;
// Allow reports whether the call is still within limit. A limit <= 0
// disables the quota.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// window is the fixed-window counter for a single key.
type window struct {
	count int
	start time.Time
}

// FixedWindowLimiter is an in-process RateLimiter.
type FixedWindowLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	size      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewFixedWindowLimiter creates a limiter with the given window size.
func NewFixedWindowLimiter(size time.Duration) *FixedWindowLimiter {
	if size <= 0 {
		size = time.Minute
	}
	return &FixedWindowLimiter{
		windows: make(map[string]*window),
		size:    size,
		now:     time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(_ context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.size {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= limit, nil
}

// sweep drops expired windows once per window period.
func (l *FixedWindowLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.size {
		return
	}
	l.lastSweep = now
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.size {
			delete(l.windows, key)
		}
	}
}

// RedisRateLimiter is a RateLimiter shared across processes. Each window is a
// Redis counter incremented atomically and expired with the window.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	size   time.Duration
	now    func() time.Time
}

// NewRedisRateLimiter creates a Redis-backed fixed-window limiter.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, size time.Duration) *RedisRateLimiter {
	if prefix == "" {
		prefix = "agentlens:ratelimit:"
	}
	if size <= 0 {
		size = time.Minute
	}
	return &RedisRateLimiter{client: client, prefix: prefix, size: size, now: time.Now}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	slot := l.now().UnixNano() / int64(l.size)
	redisKey := l.prefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.size)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}

var (
	_ RateLimiter = (*FixedWindowLimiter)(nil)
	_ RateLimiter = (*RedisRateLimiter)(nil)
)
