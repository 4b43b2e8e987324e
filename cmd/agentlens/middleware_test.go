package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/internal/metrics"
	"github.com/agentkitai/agentlens/types"
)

// identityEcho 回显上下文中的身份
func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, _ := types.TenantID(r.Context())
		agentID, _ := types.AgentID(r.Context())
		w.Header().Set("X-Seen-Tenant", tenantID)
		w.Header().Set("X-Seen-Agent", agentID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestRequestID_PropagatesToContext(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	handler := Chain(inner, SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), seen)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	// 客户端提供的 ID 原样保留
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	r.Header.Set("X-Request-ID", "req-from-client")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, "req-from-client", seen)
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(identityEcho())

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/discover", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/api/v1/discover", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	// 未配置来源时拒绝预检
	closed := CORS(nil)(identityEcho())
	r = httptest.NewRequest(http.MethodOptions, "/api/v1/discover", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	closed.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrInternalError))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/health", "/health"},
		{"/api/v1/delegations/inbox", "/api/v1/delegations/inbox"},
		{"/api/v1/delegations/logs/export", "/api/v1/delegations/logs/export"},
		{"/api/v1/delegations/7c9e6679-7425-40de-944b-e07fc1f90ae7/accept", "/api/v1/delegations/:id/accept"},
		{"/api/v1/capabilities/550e8400-e29b-41d4-a716-446655440000", "/api/v1/capabilities/:id"},
		{"/api/v1/capabilities/42/permissions", "/api/v1/capabilities/:id/permissions"},
		{"/api/v1/unknown/path", "/api/v1/unknown/path"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestChain_Order(t *testing.T) {
	var trail []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trail = append(trail, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { trail = append(trail, "handler") })

	Chain(inner, tag("outer"), tag("middle"), tag("inner")).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "middle", "inner", "handler"}, trail)

	trail = nil
	Chain(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"handler"}, trail)
}

func TestMetricsMiddleware_UsesNormalizedRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("agentlens", zap.NewNop(), metrics.WithRegisterer(reg))
	handler := MetricsMiddleware(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))

	for _, path := range []string{
		"/api/v1/capabilities/550e8400-e29b-41d4-a716-446655440000",
		"/api/v1/capabilities/7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"/api/v1/capabilities/missing",
	} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	expected := `
# HELP agentlens_http_requests_total HTTP requests by method, route and status class
# TYPE agentlens_http_requests_total counter
agentlens_http_requests_total{method="GET",path="/api/v1/capabilities/:id",status="2xx"} 2
agentlens_http_requests_total{method="GET",path="/api/v1/capabilities/missing",status="4xx"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "agentlens_http_requests_total"))
}
