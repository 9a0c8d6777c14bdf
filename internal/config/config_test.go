package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, TransportWebSocket, cfg.Push.Transport)
	assert.Equal(t, 15*24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, "/", cfg.Session.Path)
	assert.False(t, cfg.Session.Secure)
	assert.Equal(t, "token", cfg.Session.TokenName)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.RefreshDelay)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
services:
  user_url: http://auth.example.com
  chat_url: http://chat.example.com
  timeout: 5s
push:
  transport: nats
  max_reconnects: 3
redis:
  addr: localhost:6379
  db: 2
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://auth.example.com", cfg.Services.UserURL)
	assert.Equal(t, "http://chat.example.com", cfg.Services.ChatURL)
	assert.Equal(t, 5*time.Second, cfg.Services.Timeout)
	assert.Equal(t, TransportNATS, cfg.Push.Transport)
	assert.Equal(t, 3, cfg.Push.MaxReconnects)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// 未配置的字段使用默认值
	assert.Equal(t, 2*time.Second, cfg.Push.ReconnectWait)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
services:
  chat_url: http://chat.example.com
`)
	t.Setenv("ZELO_SERVICES_CHAT_URL", "http://override.example.com")
	t.Setenv("ZELO_PUSH_TRANSPORT", "webtransport")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override.example.com", cfg.Services.ChatURL)
	assert.Equal(t, TransportWebTransport, cfg.Push.Transport)
}

func TestLoad_InvalidTransport(t *testing.T) {
	path := writeConfig(t, `
push:
  transport: carrier-pigeon
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
