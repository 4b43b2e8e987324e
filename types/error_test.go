package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrTransport, "send failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true)

	assert.Equal(t, ErrTransport, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "TRANSPORT_ERROR")
	assert.Contains(t, err.Error(), "root")
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    *Error
		code   ErrorCode
		status int
	}{
		{"validation", NewValidationError("taskType is required"), ErrValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("capability %s not found", "c1"), ErrNotFound, http.StatusNotFound},
		{"permission", NewPermissionError("delegation disabled"), ErrPermissionDenied, http.StatusForbidden},
		{"rate limit", NewRateLimitError("quota exceeded"), ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", NewTimeoutError("no response"), ErrTimeout, http.StatusGatewayTimeout},
		{"transport", NewTransportError(errors.New("conn reset"), "send"), ErrTransport, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("registry: %w", NewNotFoundError("missing"))
	assert.Equal(t, ErrNotFound, GetErrorCode(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrNotFound))
	assert.False(t, IsErrorCode(nil, ErrNotFound))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}
