package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkitai/agentlens/types"
)

type decodeTarget struct {
	TaskType string `json:"taskType"`
	Priority int    `json:"priority"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantErr     bool
		wantMessage string
	}{
		{name: "valid", body: `{"taskType":"translation","priority":2}`},
		{name: "trailing comma", body: `{"taskType":"translation",}`, wantErr: true, wantMessage: "invalid JSON body"},
		{name: "unknown field", body: `{"taskType":"translation","extra":1}`, wantErr: true, wantMessage: "invalid JSON body"},
		{name: "empty", body: "", wantErr: true, wantMessage: "request body is empty"},
		{
			name:        "oversized",
			body:        `{"taskType":"` + strings.Repeat("x", 2<<20) + `"}`,
			wantErr:     true,
			wantMessage: "request body too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/delegations", strings.NewReader(tt.body))
			if tt.body == "" {
				r.Body = http.NoBody
			}

			var dst decodeTarget
			err := DecodeJSONBody(w, r, &dst, nil)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, decodeTarget{TaskType: "translation", Priority: 2}, dst)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantMessage, decodeResponse(t, w).Error.Message)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON; charset=UTF-8", true},
		{"application/json;  charset=utf-8", true},
		{"text/plain", false},
		{"application/jsonx", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/capabilities", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, nil))
			if !tt.want {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestCallerIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/delegations/inbox", nil)

	w := httptest.NewRecorder()
	_, _, ok := callerAgent(w, r, nil)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = r.WithContext(types.WithTenantID(r.Context(), "tenant-1"))
	tenant, ok := callerTenant(httptest.NewRecorder(), r, nil)
	assert.True(t, ok)
	assert.Equal(t, "tenant-1", tenant)

	w = httptest.NewRecorder()
	_, _, ok = callerAgent(w, r, nil)
	assert.False(t, ok)
	assert.Equal(t, "agent identity is required", decodeResponse(t, w).Error.Message)

	r = r.WithContext(types.WithAgentID(r.Context(), "agent-1"))
	tenant, agent, ok := callerAgent(httptest.NewRecorder(), r, nil)
	assert.True(t, ok)
	assert.Equal(t, "tenant-1", tenant)
	assert.Equal(t, "agent-1", agent)
}
