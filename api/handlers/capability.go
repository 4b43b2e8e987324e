package handlers

import (
	"net/http"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🧩 Capability 注册 Handler
// =============================================================================

// CapabilityHandler 能力注册与权限管理
type CapabilityHandler struct {
	registry *discovery.CapabilityRegistry
	logger   *zap.Logger
}

// NewCapabilityHandler 创建能力处理器
func NewCapabilityHandler(registry *discovery.CapabilityRegistry, logger *zap.Logger) *CapabilityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapabilityHandler{
		registry: registry,
		logger:   logger.With(zap.String("handler", "capability")),
	}
}

// HandleCreate 注册调用方 Agent 的能力
// @Summary 注册能力
// @Tags 能力
// @Accept json
// @Produce json
// @Param request body discovery.CreateCapabilityInput true "能力定义"
// @Success 201 {object} Response{data=discovery.Capability}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/v1/capabilities [post]
func (h *CapabilityHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, agentID, ok := callerAgent(w, r, h.logger)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var in discovery.CreateCapabilityInput
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}

	capability, err := h.registry.Create(r.Context(), tenantID, agentID, in)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteCreated(w, capability)
}

// HandleList 列出 Agent 的能力，默认为调用方自身
// @Summary 列出能力
// @Tags 能力
// @Produce json
// @Param agentId query string false "Agent ID"
// @Success 200 {object} Response{data=[]discovery.Capability}
// @Router /api/v1/capabilities [get]
func (h *CapabilityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	agentID := r.URL.Query().Get("agentId")
	if agentID == "" {
		var found bool
		if agentID, found = types.AgentID(r.Context()); !found {
			WriteError(w, types.NewValidationError("agentId is required"), h.logger)
			return
		}
	}

	caps, err := h.registry.ListByAgent(r.Context(), tenantID, agentID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if caps == nil {
		caps = []*discovery.Capability{}
	}
	WriteSuccess(w, caps)
}

// HandleGet 获取单个能力
// @Summary 获取能力
// @Tags 能力
// @Produce json
// @Param id path string true "能力 ID"
// @Success 200 {object} Response{data=discovery.Capability}
// @Failure 404 {object} Response
// @Router /api/v1/capabilities/{id} [get]
func (h *CapabilityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	capability, err := h.registry.GetByID(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, capability)
}

// HandleDelete 删除能力
// @Summary 删除能力
// @Tags 能力
// @Param id path string true "能力 ID"
// @Success 204
// @Failure 404 {object} Response
// @Router /api/v1/capabilities/{id} [delete]
func (h *CapabilityHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.registry.Delete(r.Context(), tenantID, r.PathValue("id")); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdatePermissions 更新 enabled / acceptDelegations / 限流配置
// @Summary 更新能力权限
// @Tags 能力
// @Accept json
// @Produce json
// @Param id path string true "能力 ID"
// @Param request body discovery.PermissionUpdate true "权限变更"
// @Success 200 {object} Response{data=discovery.Capability}
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/capabilities/{id}/permissions [put]
func (h *CapabilityHandler) HandleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var upd discovery.PermissionUpdate
	if err := DecodeJSONBody(w, r, &upd, h.logger); err != nil {
		return
	}

	capability, err := h.registry.UpdatePermissions(r.Context(), tenantID, r.PathValue("id"), upd)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, capability)
}
