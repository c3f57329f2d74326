package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CHAT_BACKEND_URL", "CHAT_REQUEST_TIMEOUT", "CHAT_RESET_TIMEOUT",
		"WIDGET_SESSION_TTL", "WIDGET_RATE_LIMIT", "WIDGET_RATE_BURST",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.ChatTimeout)
	assert.Equal(t, 10*time.Second, cfg.Backend.ResetTimeout)
	assert.Equal(t, time.Hour, cfg.Widget.SessionTTL)
	assert.Equal(t, 5.0, cfg.Widget.RateLimit)
	assert.Equal(t, 20, cfg.Widget.RateBurst)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CHAT_BACKEND_URL", "https://bot.example.com/")
	t.Setenv("CHAT_REQUEST_TIMEOUT", "0")
	t.Setenv("CHAT_RESET_TIMEOUT", "1500ms")
	t.Setenv("WIDGET_RATE_LIMIT", "0")
	t.Setenv("WIDGET_RATE_BURST", "-3")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("LOG_FILE", "chat.log")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "https://bot.example.com", cfg.Backend.BaseURL)
	assert.Zero(t, cfg.Backend.ChatTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Backend.ResetTimeout)
	assert.Zero(t, cfg.Widget.RateLimit)
	assert.Equal(t, 1, cfg.Widget.RateBurst)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "chat.log", cfg.Log.File)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port with space", "PORT", "80 80"},
		{"backend scheme", "CHAT_BACKEND_URL", "ftp://bot"},
		{"timeout garbage", "CHAT_REQUEST_TIMEOUT", "soon"},
		{"negative timeout", "CHAT_RESET_TIMEOUT", "-5s"},
		{"rate limit garbage", "WIDGET_RATE_LIMIT", "fast"},
		{"negative rate limit", "WIDGET_RATE_LIMIT", "-1"},
		{"log level", "LOG_LEVEL", "verbose"},
		{"log format", "LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
		})
	}
}
