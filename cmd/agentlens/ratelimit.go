package main

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agentkitai/agentlens/types"
)

// =============================================================================
// 🚦 HTTP 限流
// =============================================================================
// 与委托协议的每窗口限额无关，只用于保护 API 入口。

const (
	visitorIdleTTL = 3 * time.Minute
	sweepInterval  = time.Minute
)

// visitorLimiter 每个键一个令牌桶；空闲超过 visitorIdleTTL 的键被清理
type visitorLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newVisitorLimiter 启动清理协程，随 ctx 结束
func newVisitorLimiter(ctx context.Context, rps float64, burst int) *visitorLimiter {
	v := &visitorLimiter{rps: rate.Limit(rps), burst: burst, visitors: make(map[string]*visitor)}
	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				v.sweep(now)
			}
		}
	}()
	return v
}

func (v *visitorLimiter) allow(key string) bool {
	v.mu.Lock()
	vis := v.visitors[key]
	if vis == nil {
		vis = &visitor{limiter: rate.NewLimiter(v.rps, v.burst)}
		v.visitors[key] = vis
	}
	vis.lastSeen = time.Now()
	v.mu.Unlock()
	return vis.limiter.Allow()
}

func (v *visitorLimiter) sweep(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for key, vis := range v.visitors {
		if now.Sub(vis.lastSeen) > visitorIdleTTL {
			delete(v.visitors, key)
		}
	}
}

// limitBy 以 keyOf 的结果为桶，超限返回 429
func limitBy(ctx context.Context, rps float64, burst int, logger *zap.Logger, message string, keyOf func(*http.Request) string) Middleware {
	limiter := newVisitorLimiter(ctx, rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			if !limiter.allow(key) {
				logger.Debug("http rate limited", zap.String("key", key))
				writeError(w, http.StatusTooManyRequests, types.ErrRateLimited, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter 按客户端 IP 限流，位于认证之前
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	return limitBy(ctx, rps, burst, logger, "too many requests", clientIP)
}

// TenantRateLimiter 位于认证之后，按租户限流；无租户身份时按 IP
func TenantRateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	return limitBy(ctx, rps, burst, logger, "tenant rate limit exceeded", func(r *http.Request) string {
		if tenantID, ok := types.TenantID(r.Context()); ok {
			return "tenant:" + tenantID
		}
		return "ip:" + clientIP(r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
