package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/types"
)

// =============================================================================
// 📦 响应信封
// =============================================================================

// Response 所有 JSON 端点共用的信封；RequestID 取自 X-Request-ID 响应头
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// statusByCode 错误码的默认 HTTP 状态；未列出的按 500 处理
var statusByCode = map[types.ErrorCode]int{
	types.ErrInvalidRequest:     http.StatusBadRequest,
	types.ErrValidation:         http.StatusBadRequest,
	types.ErrUnauthorized:       http.StatusUnauthorized,
	types.ErrForbidden:          http.StatusForbidden,
	types.ErrPermissionDenied:   http.StatusForbidden,
	types.ErrNotFound:           http.StatusNotFound,
	types.ErrConflict:           http.StatusConflict,
	types.ErrRateLimited:        http.StatusTooManyRequests,
	types.ErrTransport:          http.StatusBadGateway,
	types.ErrServiceUnavailable: http.StatusServiceUnavailable,
	types.ErrTimeout:            http.StatusGatewayTimeout,
}

func statusFor(code types.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteJSON 写出任意 JSON 值。头部写出后编码失败只能放弃。
func WriteJSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func envelope(w http.ResponseWriter, data any, info *ErrorInfo) Response {
	return Response{
		Success:   info == nil,
		Data:      data,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	}
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, envelope(w, data, nil))
}

func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, envelope(w, data, nil))
}

// WriteError 写出 types.Error；HTTPStatus 未设置时按错误码推导。
// 5xx 记 Error 日志，其余记 Debug。
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = statusFor(err.Code)
	}

	if logger != nil {
		level := zap.DebugLevel
		if status >= http.StatusInternalServerError {
			level = zap.ErrorLevel
		}
		if ce := logger.Check(level, "request failed"); ce != nil {
			fields := []zap.Field{
				zap.String("code", string(err.Code)),
				zap.Int("status", status),
				zap.String("message", err.Message),
			}
			if err.Cause != nil {
				fields = append(fields, zap.NamedError("cause", err.Cause))
			}
			ce.Write(fields...)
		}
	}

	WriteJSON(w, status, envelope(w, nil, &ErrorInfo{
		Code:       string(err.Code),
		Message:    err.Message,
		Retryable:  err.Retryable,
		HTTPStatus: status,
	}))
}

// WriteServiceError 写出服务层错误。非 types.Error 一律按内部错误输出固定文案，原始错误只进日志。
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	apiErr, ok := types.AsError(err)
	if !ok {
		apiErr = types.NewError(types.ErrInternalError, "internal server error").WithCause(err)
	}
	WriteError(w, apiErr, logger)
}

func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// =============================================================================
// 📊 StatusWriter
// =============================================================================

// StatusWriter 记录首次写出的状态码与响应体字节数，供日志、指标与追踪中间件读取
type StatusWriter struct {
	http.ResponseWriter
	Status      int
	Bytes       int64
	wroteHeader bool
}

func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, Status: http.StatusOK}
}

func (sw *StatusWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.Status = code
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *StatusWriter) Write(b []byte) (int, error) {
	sw.WriteHeader(http.StatusOK)
	n, err := sw.ResponseWriter.Write(b)
	sw.Bytes += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 使用
func (sw *StatusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
