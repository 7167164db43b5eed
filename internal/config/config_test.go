package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CHAT_CONFIG_FILE", "API_BASE_URL", "WS_URL", "CHAT_TOKEN", "EVENT_ID",
	"REDIS_URL", "AUTH_ISSUER_URL", "LOG_LEVEL", "CACHE_TTL", "REQUEST_TIMEOUT",
	"PING_INTERVAL", "BACKOFF_BASE", "BACKOFF_MAX", "TYPING_WINDOW",
	"TYPING_INTERVAL", "READ_DEBOUNCE", "POLL_INTERVAL", "EVENT_DURATION",
}

// clearEnv unsets every variable Load reads; t.Setenv restores them after
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WSURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, time.Second, cfg.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Equal(t, 3*time.Second, cfg.TypingWindow)
	assert.Equal(t, 2*time.Second, cfg.TypingInterval)
	assert.Equal(t, time.Second, cfg.ReadDebounce)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Hour, cfg.EventDuration)
	assert.Empty(t, cfg.Token)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("WS_URL", "wss://chat.example.com/ws")
	t.Setenv("CHAT_TOKEN", "tok")
	t.Setenv("EVENT_ID", "ev1")
	t.Setenv("PING_INTERVAL", "45s")
	t.Setenv("READ_DEBOUNCE", "1500")
	t.Setenv("TYPING_WINDOW", "garbage")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/ws", cfg.WSURL)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, "ev1", cfg.EventID)
	assert.Equal(t, 45*time.Second, cfg.PingInterval)
	assert.Equal(t, 1500*time.Millisecond, cfg.ReadDebounce)
	assert.Equal(t, 3*time.Second, cfg.TypingWindow, "unparseable values keep the default")
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAT_CONFIG_FILE", writeFile(t, `
api_base_url: https://api.example.com
ws_url: wss://file.example.com/ws
redis_url: redis://localhost:6379/0
poll_interval: 5s
backoff_max: 1m
`))
	t.Setenv("WS_URL", "wss://env.example.com/ws")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, "wss://env.example.com/ws", cfg.WSURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.BackoffMax)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad duration in file", file: "ping_interval: soon\n"},
		{name: "malformed yaml", file: "ws_url: [unterminated\n"},
		{name: "missing file", env: map[string]string{"CHAT_CONFIG_FILE": "/nonexistent/chat.yaml"}},
		{name: "backoff max below base", env: map[string]string{"BACKOFF_BASE": "10s", "BACKOFF_MAX": "5s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.file != "" {
				t.Setenv("CHAT_CONFIG_FILE", writeFile(t, tt.file))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
