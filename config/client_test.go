package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ClientConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultClientConfig(), cfg)
}

func TestClientConfigFromEnv(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "wss://chat.example.com/ws")
	t.Setenv("CHAT_USERNAME", "alice")
	t.Setenv("CHAT_TOKEN", "tok")
	t.Setenv("CHAT_SETTLE_DELAY", "50ms")
	t.Setenv("CHAT_MAX_RECONNECT_ATTEMPTS", "2")

	cfg, err := ClientConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.ServerURL)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 50*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, 2, cfg.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestClientConfigFromEnvInvalidDuration(t *testing.T) {
	t.Setenv("CHAT_CONNECT_TIMEOUT", "soon")

	_, err := ClientConfigFromEnv()
	assert.Error(t, err)
}

func TestClientConfigFromEnvNegativeAttempts(t *testing.T) {
	t.Setenv("CHAT_MAX_RECONNECT_ATTEMPTS", "-1")

	_, err := ClientConfigFromEnv()
	assert.Error(t, err)
}

func TestAPIConfigFromEnv(t *testing.T) {
	t.Setenv("CHAT_API_ENABLED", "true")
	t.Setenv("CHAT_API_ADDR", ":9090")

	cfg, err := APIConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
}
