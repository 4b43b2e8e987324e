package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agentkitai/agentlens/agent/delegation"
	"github.com/agentkitai/agentlens/agent/discovery"
	"github.com/agentkitai/agentlens/agent/observability"
	"github.com/agentkitai/agentlens/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🤝 Delegation Handler
// =============================================================================

// StatsProvider 提供进程内委托统计
type StatsProvider interface {
	Snapshot() *observability.Snapshot
}

// DelegationHandler 委托协议、目标端收件箱与审计日志
type DelegationHandler struct {
	service *delegation.Service
	stats   StatsProvider
	logger  *zap.Logger
}

// CompleteRequest 完成委托的请求体
type CompleteRequest struct {
	Output json.RawMessage `json:"output"`
}

// RejectRequest 拒绝委托的请求体
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// FailRequest 委托执行失败的请求体
type FailRequest struct {
	Message string `json:"message,omitempty"`
}

// NewDelegationHandler 创建委托处理器；stats 为 nil 时统计端点返回 503
func NewDelegationHandler(service *delegation.Service, stats StatsProvider, logger *zap.Logger) *DelegationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelegationHandler{
		service: service,
		stats:   stats,
		logger:  logger.With(zap.String("handler", "delegation")),
	}
}

// HandleDelegate 委托工具入口，阻塞直到终态
// @Summary 发起委托
// @Description 结果状态为 success / rejected / timeout / error，均以 200 返回
// @Tags 委托
// @Accept json
// @Produce json
// @Param request body delegation.Request true "委托请求"
// @Success 200 {object} Response{data=delegation.Result}
// @Failure 400 {object} Response
// @Router /api/v1/delegations [post]
func (h *DelegationHandler) HandleDelegate(w http.ResponseWriter, r *http.Request) {
	tenantID, agentID, ok := callerAgent(w, r, h.logger)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req delegation.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	WriteSuccess(w, h.service.Delegate(r.Context(), tenantID, agentID, req))
}

// HandleInbox 目标 Agent 拉取待处理请求
// @Summary 收件箱
// @Tags 委托
// @Produce json
// @Success 200 {object} Response{data=[]delegation.InboxItem}
// @Router /api/v1/delegations/inbox [get]
func (h *DelegationHandler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	tenantID, agentID, ok := callerAgent(w, r, h.logger)
	if !ok {
		return
	}
	items, err := h.service.GetInbox(r.Context(), tenantID, agentID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if items == nil {
		items = []delegation.InboxItem{}
	}
	WriteSuccess(w, items)
}

// HandleAccept 接受委托
// @Summary 接受委托
// @Tags 委托
// @Param id path string true "请求 ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/delegations/{id}/accept [post]
func (h *DelegationHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	tenantID, agentID, ok := callerAgent(w, r, h.logger)
	if !ok {
		return
	}
	requestID := r.PathValue("id")
	if err := h.service.AcceptDelegation(r.Context(), tenantID, agentID, requestID); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"requestId": requestID, "status": "accepted"})
}

// HandleComplete 提交委托输出
// @Summary 完成委托
// @Tags 委托
// @Accept json
// @Param id path string true "请求 ID"
// @Param request body CompleteRequest true "输出"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/delegations/{id}/complete [post]
func (h *DelegationHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	tenantID, agentID, ok := callerAgent(w, r, h.logger)
	if !ok {
		return
	}
	var body CompleteRequest
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}
	requestID := r.PathValue("id")
	if err := h.service.CompleteDelegation(r.Context(), tenantID, agentID, requestID, body.Output); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"requestId": requestID, "status": "completed"})
}

// HandleReject 拒绝委托
// @Summary 拒绝委托
// @Tags 委托
// @Accept json
// @Param id path string true "请求 ID"
// @Param request body RejectRequest false "原因"
// @Success 200 {object} Response
// @Router /api/v1/delegations/{id}/reject [post]
func (h *DelegationHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	tenantID, agentID, ok := callerAgent(w, r, h.logger)
	if !ok {
		return
	}
	var body RejectRequest
	if r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
			return
		}
	}
	requestID := r.PathValue("id")
	if err := h.service.RejectDelegation(r.Context(), tenantID, agentID, requestID, body.Reason); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"requestId": requestID, "status": "rejected"})
}

// HandleFail 报告已接受委托执行失败
// @Summary 委托失败
// @Tags 委托
// @Accept json
// @Param id path string true "请求 ID"
// @Param request body FailRequest false "错误信息"
// @Success 200 {object} Response
// @Router /api/v1/delegations/{id}/fail [post]
func (h *DelegationHandler) HandleFail(w http.ResponseWriter, r *http.Request) {
	tenantID, agentID, ok := callerAgent(w, r, h.logger)
	if !ok {
		return
	}
	var body FailRequest
	if r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
			return
		}
	}
	requestID := r.PathValue("id")
	if err := h.service.FailDelegation(r.Context(), tenantID, agentID, requestID, body.Message); err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"requestId": requestID, "status": "error"})
}

// HandleLogs 查询租户委托日志
// @Summary 委托日志
// @Tags 委托
// @Produce json
// @Param agentId query string false "Agent ID"
// @Param direction query string false "outbound | inbound"
// @Param status query string false "success | rejected | timeout | error"
// @Param taskType query string false "任务类型"
// @Param since query string false "RFC3339"
// @Param until query string false "RFC3339"
// @Param limit query integer false "条数"
// @Param offset query integer false "偏移"
// @Success 200 {object} Response{data=[]delegation.LogEntry}
// @Router /api/v1/delegations/logs [get]
func (h *DelegationHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	filter, ferr := parseLogFilter(r.URL.Query())
	if ferr != nil {
		WriteError(w, ferr, h.logger)
		return
	}
	entries, err := h.service.GetDelegationLogs(r.Context(), tenantID, filter)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	if entries == nil {
		entries = []*delegation.LogEntry{}
	}
	WriteSuccess(w, entries)
}

// HandleExport 导出完整日志为 JSON 数组
// @Summary 导出委托日志
// @Tags 委托
// @Produce json
// @Success 200 {array} delegation.LogEntry
// @Router /api/v1/delegations/logs/export [get]
func (h *DelegationHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := callerTenant(w, r, h.logger)
	if !ok {
		return
	}
	data, err := h.service.ExportDelegationLogs(r.Context(), tenantID)
	if err != nil {
		WriteServiceError(w, err, h.logger)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="delegation-logs.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleStats 返回进程内委托统计快照
// @Summary 委托统计
// @Tags 委托
// @Produce json
// @Success 200 {object} Response{data=observability.Snapshot}
// @Failure 503 {object} Response
// @Router /api/v1/delegations/stats [get]
func (h *DelegationHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerTenant(w, r, h.logger); !ok {
		return
	}
	if h.stats == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "statistics are not enabled", h.logger)
		return
	}
	WriteSuccess(w, h.stats.Snapshot())
}

func parseLogFilter(v url.Values) (delegation.LogFilter, *types.Error) {
	f := delegation.LogFilter{
		AgentID:   v.Get("agentId"),
		Direction: delegation.Direction(v.Get("direction")),
		Status:    delegation.Status(v.Get("status")),
		TaskType:  discovery.TaskType(v.Get("taskType")),
	}
	var err *types.Error
	if f.Since, err = parseTimeParam("since", v.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam("until", v.Get("until")); err != nil {
		return f, err
	}
	if f.Limit, err = parseIntParam("limit", v.Get("limit")); err != nil {
		return f, err
	}
	if f.Offset, err = parseIntParam("offset", v.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(name, raw string) (time.Time, *types.Error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, types.NewValidationError("%s must be an RFC3339 timestamp", name)
	}
	return t, nil
}

func parseIntParam(name, raw string) (int, *types.Error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewValidationError("%s must be an integer", name)
	}
	return n, nil
}
