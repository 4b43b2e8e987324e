package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/types"
)

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(identityEcho())
	call := func(remote string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	// 其他 IP 独立计数
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"))
}

func TestTenantRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := TenantRateLimiter(ctx, 1, 1, zap.NewNop())(identityEcho())
	call := func(tenantID string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tenantID != "" {
			r = r.WithContext(types.WithTenantID(r.Context(), tenantID))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("tenant-a"))
	assert.Equal(t, http.StatusTooManyRequests, call("tenant-a"))
	assert.Equal(t, http.StatusOK, call("tenant-b"))
}

func TestVisitorLimiter_Sweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := newVisitorLimiter(ctx, 1, 1)
	v.allow("a")
	v.sweep(time.Now().Add(4 * time.Minute))

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Empty(t, v.visitors)
}
