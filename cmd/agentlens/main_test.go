package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Dispatch(t *testing.T) {
	assert.ErrorIs(t, run(nil), errUsage)
	assert.ErrorIs(t, run([]string{"frobnicate"}), errUsage)
	assert.NoError(t, run([]string{"help"}))
	assert.NoError(t, run([]string{"version"}))
	assert.ErrorIs(t, run([]string{"migrate"}), errUsage)
	assert.NoError(t, run([]string{"migrate", "help"}))
	assert.ErrorIs(t, run([]string{"migrate", "sideways"}), errUsage)
}

func TestRunHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	require.NoError(t, runHealthCheck([]string{"--addr", healthy.URL}))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	err := runHealthCheck([]string{"--addr", failing.URL, "--timeout", "1s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
