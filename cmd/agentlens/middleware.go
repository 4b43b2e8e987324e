package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/api/handlers"
	"github.com/agentkitai/agentlens/internal/metrics"
	"github.com/agentkitai/agentlens/types"
)

type Middleware func(http.Handler) http.Handler

// Chain 按书写顺序由外到内包装 h
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// =============================================================================
// 🛡️ 基础
// =============================================================================

func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("panic in handler",
						zap.Any("panic", v),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					writeError(w, http.StatusInternalServerError, types.ErrInternalError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 沿用客户端的 X-Request-ID，否则生成 UUID；写回响应头并注入上下文
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
		})
	}
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'self'"},
}

func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS 仅对白名单来源回写 CORS 头。未配置来源时跨域预检一律 403。
func CORS(allowedOrigins []string) Middleware {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions

			switch {
			case len(allowed) == 0 && preflight && origin != "":
				w.WriteHeader(http.StatusForbidden)
				return
			case allowed[origin]:
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Tenant-ID, X-Agent-ID, X-Request-ID")
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}
			if preflight && len(allowed) > 0 {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📈 可观测性
// =============================================================================

func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := handlers.NewStatusWriter(w)
			next.ServeHTTP(sw, r)

			fields := make([]zap.Field, 0, 7)
			fields = append(fields,
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
			ctx := r.Context()
			if id, ok := types.RequestID(ctx); ok {
				fields = append(fields, zap.String("request_id", id))
			}
			if tenantID, ok := types.TenantID(ctx); ok {
				fields = append(fields, zap.String("tenant_id", tenantID))
			}
			logger.Info("request", fields...)
		})
	}
}

func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := handlers.NewStatusWriter(w)
			next.ServeHTTP(sw, r)

			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), sw.Status,
				time.Since(start), max(r.ContentLength, 0), sw.Bytes)
		})
	}
}

// OTelTracing 延续请求头中的上游链路，为每个请求开启服务端 span，
// 并把 trace id 写入上下文供日志关联
func OTelTracing() Middleware {
	tracer := otel.Tracer("agentlens/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+normalizePath(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				ctx = types.WithTraceID(ctx, sc.TraceID().String())
			}
			sw := handlers.NewStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.response.status_code", sw.Status))
		})
	}
}

// normalizePath 把 ID 段替换为 ":id"，控制指标与 span 名的基数：
//
//	/api/v1/delegations/7c9e6679-7425-40de-944b-e07fc1f90ae7/accept -> /api/v1/delegations/:id/accept
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	changed := false
	for i, seg := range segments {
		if looksLikeID(seg) {
			segments[i] = ":id"
			changed = true
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segments, "/")
}

// looksLikeID 纯数字，或至少 8 位的十六进制/UUID 形式
func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	if strings.Trim(seg, "0123456789") == "" {
		return true
	}
	return len(seg) >= 8 && seg[0] != '-' && strings.Trim(seg, "0123456789abcdefABCDEF-") == ""
}

// writeError 中间件层的错误响应，格式与 handlers 一致
func writeError(w http.ResponseWriter, status int, code types.ErrorCode, message string) {
	handlers.WriteErrorMessage(w, status, code, message, nil)
}
