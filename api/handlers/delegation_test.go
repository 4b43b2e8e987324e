package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentkitai/agentlens/agent/delegation"
	"github.com/agentkitai/agentlens/agent/observability"
	"github.com/agentkitai/agentlens/types"
)

func (f *apiFixture) delegateAsync(t *testing.T, tenantID, requester string, body map[string]any) <-chan *httptest.ResponseRecorder {
	t.Helper()
	r := asCaller(jsonRequest(t, http.MethodPost, "/api/v1/delegations", body), tenantID, requester)
	out := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		f.delegations.HandleDelegate(w, r)
		out <- w
	}()
	return out
}

func (f *apiFixture) pollInbox(t *testing.T, tenantID, agentID string) delegation.InboxItem {
	t.Helper()
	var item delegation.InboxItem
	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		f.delegations.HandleInbox(w, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/delegations/inbox", nil), tenantID, agentID))
		if w.Code != http.StatusOK {
			return false
		}
		var items []delegation.InboxItem
		decodeData(t, w, &items)
		if len(items) == 0 {
			return false
		}
		item = items[0]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return item
}

func (f *apiFixture) targetCall(t *testing.T, handler http.HandlerFunc, tenantID, agentID, requestID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(http.MethodPost, "/api/v1/delegations/"+requestID+"/x", nil)
	} else {
		r = jsonRequest(t, http.MethodPost, "/api/v1/delegations/"+requestID+"/x", body)
	}
	r = asCaller(r, tenantID, agentID)
	r.SetPathValue("id", requestID)
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func awaitRecorder(t *testing.T, ch <-chan *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	select {
	case w := <-ch:
		return w
	case <-time.After(5 * time.Second):
		t.Fatal("delegation did not resolve")
		return nil
	}
}

func TestDelegationHandler_EndToEnd(t *testing.T) {
	f := newAPIFixture(t)
	f.enableDelegation(t, "tenant-1")
	f.registerWorker(t, "tenant-1", "worker-1", 80, true)

	// 发现匿名候选
	w := httptest.NewRecorder()
	f.discover.HandleDiscover(w, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/discover?taskType=code-review&minTrust=50", nil), "tenant-1", "req-agent"))
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Results []struct {
			AnonymousAgentID string `json:"anonymousAgentId"`
		} `json:"results"`
	}
	decodeData(t, w, &found)
	require.Len(t, found.Results, 1)
	target := found.Results[0].AnonymousAgentID

	pending := f.delegateAsync(t, "tenant-1", "req-agent", map[string]any{
		"targetAgentId": target,
		"taskType":      "code-review",
		"input":         map[string]any{"code": "func main() {}"},
		"timeoutMs":     5000,
	})

	item := f.pollInbox(t, "tenant-1", "worker-1")
	assert.Equal(t, target, item.TargetAnonymousID)
	assert.NotEqual(t, "req-agent", item.RequesterAnonymousID)

	w = f.targetCall(t, f.delegations.HandleAccept, "tenant-1", "worker-1", item.RequestID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.targetCall(t, f.delegations.HandleComplete, "tenant-1", "worker-1", item.RequestID,
		map[string]any{"output": map[string]any{"approved": true}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = awaitRecorder(t, pending)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result delegation.Result
	decodeData(t, w, &result)
	assert.Equal(t, item.RequestID, result.RequestID)
	assert.Equal(t, delegation.StatusSuccess, result.Status)
	assert.JSONEq(t, `{"approved":true}`, string(result.Output))

	// 日志与导出
	w = httptest.NewRecorder()
	f.delegations.HandleLogs(w, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/delegations/logs?direction=outbound&status=success", nil), "tenant-1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var entries []delegation.LogEntry
	decodeData(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-agent", entries[0].AgentID)

	w = httptest.NewRecorder()
	f.delegations.HandleExport(w, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/delegations/logs/export", nil), "tenant-1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "delegation-logs.json")
	var exported []delegation.LogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Len(t, exported, 1)

	// 统计快照
	w = httptest.NewRecorder()
	f.delegations.HandleStats(w, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/delegations/stats", nil), "tenant-1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	var snap observability.Snapshot
	decodeData(t, w, &snap)
	require.Contains(t, snap.TaskTypes, "code-review")
	assert.Equal(t, int64(1), snap.TaskTypes["code-review"].ByStatus["success"])
}

func TestDelegationHandler_DisabledTenantRejects(t *testing.T) {
	f := newAPIFixture(t)
	f.registerWorker(t, "tenant-1", "worker-1", 80, true)

	w := awaitRecorder(t, f.delegateAsync(t, "tenant-1", "req-agent", map[string]any{
		"targetAgentId": "anon-unknown",
		"taskType":      "code-review",
		"input":         map[string]any{},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	var result delegation.Result
	decodeData(t, w, &result)
	assert.Equal(t, delegation.StatusRejected, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrPermissionDenied, result.Error.Code)
}

func TestDelegationHandler_RejectAndAcceptPermission(t *testing.T) {
	f := newAPIFixture(t)
	f.enableDelegation(t, "tenant-1")
	f.registerWorker(t, "tenant-1", "worker-1", 80, false)
	anon, err := f.ids.GetOrRotateAnonymousID(t.Context(), "tenant-1", "worker-1")
	require.NoError(t, err)

	pending := f.delegateAsync(t, "tenant-1", "req-agent", map[string]any{
		"targetAgentId": anon,
		"taskType":      "code-review",
		"input":         map[string]any{},
		"timeoutMs":     5000,
	})
	item := f.pollInbox(t, "tenant-1", "worker-1")

	w := f.targetCall(t, f.delegations.HandleAccept, "tenant-1", "worker-1", item.RequestID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeData(t, w, nil)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "does not accept")

	// 非目标 Agent 看不到该请求
	w = f.targetCall(t, f.delegations.HandleReject, "tenant-1", "worker-2", item.RequestID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.targetCall(t, f.delegations.HandleReject, "tenant-1", "worker-1", item.RequestID, map[string]any{"reason": "busy"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = awaitRecorder(t, pending)
	var result delegation.Result
	decodeData(t, w, &result)
	assert.Equal(t, delegation.StatusRejected, result.Status)
}

func TestDelegationHandler_CompleteBeforeAccept(t *testing.T) {
	f := newAPIFixture(t)
	f.enableDelegation(t, "tenant-1")
	f.registerWorker(t, "tenant-1", "worker-1", 80, true)
	anon, err := f.ids.GetOrRotateAnonymousID(t.Context(), "tenant-1", "worker-1")
	require.NoError(t, err)

	pending := f.delegateAsync(t, "tenant-1", "req-agent", map[string]any{
		"targetAgentId": anon,
		"taskType":      "code-review",
		"input":         map[string]any{},
		"timeoutMs":     5000,
	})
	item := f.pollInbox(t, "tenant-1", "worker-1")

	w := f.targetCall(t, f.delegations.HandleComplete, "tenant-1", "worker-1", item.RequestID, map[string]any{"output": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, f.targetCall(t, f.delegations.HandleAccept, "tenant-1", "worker-1", item.RequestID, nil).Code)
	w = f.targetCall(t, f.delegations.HandleFail, "tenant-1", "worker-1", item.RequestID, map[string]any{"message": "linter crashed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = awaitRecorder(t, pending)
	var result delegation.Result
	decodeData(t, w, &result)
	assert.Equal(t, delegation.StatusError, result.Status)
}

func TestDelegationHandler_LogFilterValidation(t *testing.T) {
	f := newAPIFixture(t)

	for _, target := range []string{
		"/api/v1/delegations/logs?since=yesterday",
		"/api/v1/delegations/logs?limit=many",
		"/api/v1/delegations/logs?offset=-1",
	} {
		w := httptest.NewRecorder()
		f.delegations.HandleLogs(w, asCaller(httptest.NewRequest(http.MethodGet, target, nil), "tenant-1", ""))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}

	f2, err := parseLogFilter(httptest.NewRequest(http.MethodGet,
		"/?since=2026-01-02T03:04:05Z&until=2026-02-01T00:00:00Z&limit=10&offset=5&taskType=analysis", nil).URL.Query())
	require.Nil(t, err)
	assert.Equal(t, 2026, f2.Since.Year())
	assert.Equal(t, time.February, f2.Until.Month())
	assert.Equal(t, 10, f2.Limit)
	assert.Equal(t, 5, f2.Offset)
}

func TestDelegationHandler_StatsDisabled(t *testing.T) {
	f := newAPIFixture(t)
	h := NewDelegationHandler(f.delegation, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleStats(w, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/delegations/stats", nil), "tenant-1", ""))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDelegationHandler_RequiresAgent(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.delegations.HandleInbox(w, asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/delegations/inbox", nil), "tenant-1", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
