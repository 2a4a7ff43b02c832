package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "30s", cfg.HTTPTimeout)
	assert.Equal(t, "15s", cfg.ShutdownTimeout)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DSN, defaultDBFileName)

	assert.Empty(t, cfg.Crypto.EncryptionKey)
	assert.Empty(t, cfg.Microsoft.ClientID)
	assert.Equal(t, "common", cfg.Microsoft.TenantID)
	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.Microsoft.GraphBaseURL)

	assert.Empty(t, cfg.OneDrive.FolderID)
	assert.Equal(t, "rag-chatbot", cfg.OneDrive.FolderName)

	assert.Equal(t, "24h", cfg.Session.TTL)
	assert.False(t, cfg.Session.CookieSecure)

	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "30s", cfg.Redis.LockTTL)

	assert.Equal(t, 20, cfg.RateLimit.Requests)
	assert.Equal(t, "60s", cfg.RateLimit.Window)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 30*time.Second, cfg.HTTPTimeoutDuration())
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeoutDuration())
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
	assert.Equal(t, 30*time.Second, cfg.RedisLockTTL())
	assert.Equal(t, time.Minute, cfg.RateLimitWindow())
}

func TestDurationAccessors_FallbackOnGarbage(t *testing.T) {
	cfg := &Config{HTTPTimeout: "soon", Session: SessionConfig{TTL: "-1h"}}

	assert.Equal(t, defaultHTTPTimeoutDuration, cfg.HTTPTimeoutDuration())
	assert.Equal(t, defaultSessionTTLDuration, cfg.SessionTTL())
	assert.Equal(t, defaultRateWindowDuration, cfg.RateLimitWindow())
}
