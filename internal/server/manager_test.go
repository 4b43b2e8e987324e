package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pong = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "pong")
})

// loopbackManager 监听 127.0.0.1 随机端口，测试结束时关闭
func loopbackManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewManager(pong, cfg, zap.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     2 * time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}, DefaultConfig())
}

func TestNewManager_AppliesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ":9999"
	cfg.WriteTimeout = 6 * time.Minute
	m := NewManager(pong, cfg, nil)

	assert.Equal(t, ":9999", m.Addr())
	assert.False(t, m.IsRunning())
	assert.Equal(t, 6*time.Minute, m.server.WriteTimeout)
	assert.Equal(t, 1<<20, m.server.MaxHeaderBytes)
}

func TestManager_Lifecycle(t *testing.T) {
	m := loopbackManager(t, nil)

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	host, port, err := net.SplitHostPort(m.Addr())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.NotEqual(t, "0", port)
	assert.Equal(t, "pong", get(t, http.DefaultClient, "http://"+m.Addr()+"/"))

	assert.ErrorContains(t, m.Start(), "already started")

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	// 幂等
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorContains(t, m.Start(), "closed")
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m := loopbackManager(t, nil)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorContains(t, m.Start(), "closed")
	assert.Equal(t, "127.0.0.1:0", m.Addr())
}

func TestManager_ListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	m := loopbackManager(t, func(c *Config) { c.Addr = taken.Addr().String() })
	assert.ErrorContains(t, m.Start(), "failed to listen")
	assert.False(t, m.IsRunning())
}

func TestManager_RunWithTLS(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)
	m := loopbackManager(t, func(c *Config) {
		c.TLSCertFile = certFile
		c.TLSKeyFile = keyFile
	})
	require.NoError(t, m.Run())

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}}
	assert.Equal(t, "pong", get(t, client, "https://"+m.Addr()+"/"))

	// 明文请求得到 400
	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestManager_StartTLS_MissingCert(t *testing.T) {
	m := loopbackManager(t, nil)
	dir := t.TempDir()

	assert.Error(t, m.StartTLS(filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")))
	assert.False(t, m.IsRunning())
	assert.Equal(t, "127.0.0.1:0", m.Addr())
}

func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}
