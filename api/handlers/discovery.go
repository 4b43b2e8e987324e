package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔍 Discovery Handler
// =============================================================================

// DiscoveryHandler 能力发现与租户策略
type DiscoveryHandler struct {
	service *discovery.Service
	logger  *zap.Logger
}

// NewDiscoveryHandler 创建发现处理器
func NewDiscoveryHandler(service *discovery.Service, logger *zap.Logger) *DiscoveryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscoveryHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "discovery")),
	}
}

// HandleDiscover 按任务类型与质量条件发现匿名候选
// @Summary 发现能力
// @Tags 发现
// @Produce json
// @Param taskType query string true "任务类型"
// @Param customType query string false "自定义类型"
// @Param minTrust query number false "最低信任分"
// @Param maxCost query number false "最高成本 (USD)"
// @Param maxLatency query integer false "最高延迟 (ms)"
// @Param scope query string false "internal | external"
// @Param limit query integer false "结果数量"
// @Success 200 {object} Response{data=discovery.DiscoverResult}
// @Failure 400 {object} Response
// @Router /api/v1/discover [get]
func (h *DiscoveryHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}

	q, err := parseDiscoverQuery(r.URL.Query())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	result, svcErr := h.service.Discover(r.Context(), tenantID, q)
	if svcErr != nil {
		WriteServiceError(w, svcErr, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleGetConfig 返回租户发现策略
// @Summary 获取发现策略
// @Tags 发现
// @Produce json
// @Success 200 {object} Response{data=discovery.DiscoveryConfig}
// @Router /api/v1/discovery/config [get]
func (h *DiscoveryHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	cfg, err := h.service.GetDiscoveryConfig(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, cfg)
}

// HandleUpdateConfig 更新租户发现策略
// @Summary 更新发现策略
// @Tags 发现
// @Accept json
// @Produce json
// @Param request body discovery.DiscoveryConfigUpdate true "策略变更"
// @Success 200 {object} Response{data=discovery.DiscoveryConfig}
// @Failure 400 {object} Response
// @Router /api/v1/discovery/config [put]
func (h *DiscoveryHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var upd discovery.DiscoveryConfigUpdate
	if err := DecodeJSONBody(w, r, &upd, h.logger); err != nil {
		return
	}

	cfg, err := h.service.UpdateDiscoveryConfig(r.Context(), tenantID, upd)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, cfg)
}

func parseDiscoverQuery(v url.Values) (discovery.Query, *types.Error) {
	q := discovery.Query{
		TaskType:   discovery.TaskType(v.Get("taskType")),
		CustomType: v.Get("customType"),
		Scope:      discovery.Scope(v.Get("scope")),
	}

	// minTrustScore 为 minTrust 的别名
	minTrust := v.Get("minTrust")
	if minTrust == "" {
		minTrust = v.Get("minTrustScore")
	}
	var err *types.Error
	if q.MinTrustScore, err = parseFloatParam("minTrust", minTrust); err != nil {
		return q, err
	}
	if q.MaxCostUsd, err = parseFloatParam("maxCost", v.Get("maxCost")); err != nil {
		return q, err
	}
	if raw := v.Get("maxLatency"); raw != "" {
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return q, types.NewValidationError("maxLatency must be an integer")
		}
		q.MaxLatencyMs = &n
	}
	if raw := v.Get("limit"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil {
			return q, types.NewValidationError("limit must be an integer")
		}
		q.Limit = n
	}
	return q, nil
}

func parseFloatParam(name, raw string) (*float64, *types.Error) {
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, types.NewValidationError("%s must be a number", name)
	}
	return &f, nil
}
