package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/types"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// DecodeJSONBody 严格解码请求体到 dst：拒绝空体、未知字段与超过 1 MB 的内容。
// 失败时已写出 400，调用方直接返回即可。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		apiErr := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, apiErr, logger)
		return apiErr
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	message := "invalid JSON body"
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		message = "request body too large"
	}
	apiErr := types.NewError(types.ErrInvalidRequest, message).WithCause(err)
	WriteError(w, apiErr, logger)
	return apiErr
}

// ValidateContentType 要求 application/json，忽略参数与大小写
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == "application/json" {
		return true
	}
	WriteError(w, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json"), logger)
	return false
}

// =============================================================================
// 🔑 调用方身份
// =============================================================================

// callerTenant 读取认证中间件写入的租户；缺失时写出 401
func callerTenant(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	tenantID, ok := types.TenantID(r.Context())
	if !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "tenant identity is required", logger)
	}
	return tenantID, ok
}

// callerAgent 同时要求租户与 Agent
func callerAgent(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (tenantID, agentID string, ok bool) {
	if tenantID, ok = callerTenant(w, r, logger); !ok {
		return "", "", false
	}
	if agentID, ok = types.AgentID(r.Context()); !ok {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "agent identity is required", logger)
		return "", "", false
	}
	return tenantID, agentID, true
}
