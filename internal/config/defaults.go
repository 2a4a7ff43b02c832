package config

import (
	"path/filepath"
	"time"
)

// Default values for configuration options. These are layer 0 of the
// override chain and let `ragdesk serve` start against a local sqlite file
// with nothing but secrets in the environment.
const (
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultListenAddr      = ":8080"
	defaultBaseURL         = "http://localhost:8080"
	defaultHTTPTimeout     = "30s"
	defaultShutdownTimeout = "15s"
	defaultDriver          = "sqlite"
	defaultTenantID        = "common"
	defaultGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	defaultFolderName      = "rag-chatbot"
	defaultWebhookURL      = "http://localhost:5678/webhook/chat"
	defaultSessionTTL      = "24h"
	defaultLockTTL         = "30s"
	defaultRateRequests    = 20
	defaultRateWindow      = "60s"
	defaultDBFileName      = "ragdesk.db"
)

const (
	defaultHTTPTimeoutDuration = 30 * time.Second
	defaultShutdownDuration    = 15 * time.Second
	defaultSessionTTLDuration  = 24 * time.Hour
	defaultLockTTLDuration     = 30 * time.Second
	defaultRateWindowDuration  = 60 * time.Second
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        defaultLogLevel,
		LogFormat:       defaultLogFormat,
		ListenAddr:      defaultListenAddr,
		BaseURL:         defaultBaseURL,
		HTTPTimeout:     defaultHTTPTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		Database: DatabaseConfig{
			Driver: defaultDriver,
			DSN:    defaultDatabasePath(),
		},
		Microsoft: MicrosoftConfig{
			TenantID:     defaultTenantID,
			GraphBaseURL: defaultGraphBaseURL,
		},
		OneDrive: OneDriveConfig{
			FolderName: defaultFolderName,
		},
		N8N: N8NConfig{
			WebhookURL: defaultWebhookURL,
		},
		Session: SessionConfig{
			TTL: defaultSessionTTL,
		},
		Redis: RedisConfig{
			LockTTL: defaultLockTTL,
		},
		RateLimit: RateLimitConfig{
			Requests: defaultRateRequests,
			Window:   defaultRateWindow,
		},
	}
}

func defaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), defaultDBFileName)
}
