// Package config implements TOML configuration loading, validation, and
// environment overrides for ragdesk. Values resolve in layers: defaults,
// then the config file, then a .env file, then the process environment.
// Secrets may be written as "ssm:/path" references and are resolved at
// startup by the caller.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	ListenAddr      string `toml:"listen_addr"`
	BaseURL         string `toml:"base_url"`
	HTTPTimeout     string `toml:"http_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`

	Database  DatabaseConfig  `toml:"database"`
	Crypto    CryptoConfig    `toml:"crypto"`
	Microsoft MicrosoftConfig `toml:"microsoft"`
	OneDrive  OneDriveConfig  `toml:"onedrive"`
	N8N       N8NConfig       `toml:"n8n"`
	Session   SessionConfig   `toml:"session"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	AWS       AWSConfig       `toml:"aws"`
}

// DatabaseConfig selects the store. DSN is a file path for sqlite and a
// connection URL for postgres.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// CryptoConfig holds the credential encryption key, inline or in a file.
// An inline key wins over the file.
type CryptoConfig struct {
	EncryptionKey string `toml:"encryption_key"`
	KeyFile       string `toml:"key_file"`
}

// MicrosoftConfig is the Entra ID app registration.
type MicrosoftConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TenantID     string `toml:"tenant_id"`
	GraphBaseURL string `toml:"graph_base_url"`
}

// OneDriveConfig names the knowledge-base root folder.
type OneDriveConfig struct {
	FolderID   string `toml:"folder_id"`
	FolderName string `toml:"folder_name"`
}

// N8NConfig points at the chat workflow webhook. RecordHistory makes
// ragdesk write each exchange to chat_history itself, for workflows without
// a memory node attached to the shared database.
type N8NConfig struct {
	WebhookURL    string `toml:"webhook_url"`
	BearerToken   string `toml:"bearer_token"`
	RecordHistory bool   `toml:"record_history"`
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	Secret       string `toml:"secret"`
	TTL          string `toml:"ttl"`
	CookieSecure bool   `toml:"cookie_secure"`
}

// RedisConfig enables the cross-process token refresh lock when URL is set.
type RedisConfig struct {
	URL     string `toml:"url"`
	LockTTL string `toml:"lock_ttl"`
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	Requests int    `toml:"requests"`
	Window   string `toml:"window"`
}

// AWSConfig is used when any secret is an ssm: reference.
type AWSConfig struct {
	Region string `toml:"region"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	ListenAddr string // --listen flag on serve
}

// Durations parsed from validated strings. Validate guarantees these parse;
// the fallback only matters for hand-built configs in tests.

// HTTPTimeoutDuration returns the outbound HTTP client timeout.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return durationOr(c.HTTPTimeout, defaultHTTPTimeoutDuration)
}

// ShutdownTimeoutDuration returns the graceful shutdown budget.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return durationOr(c.ShutdownTimeout, defaultShutdownDuration)
}

// SessionTTL returns the session cookie lifetime.
func (c *Config) SessionTTL() time.Duration {
	return durationOr(c.Session.TTL, defaultSessionTTLDuration)
}

// RedisLockTTL returns the refresh lock expiry.
func (c *Config) RedisLockTTL() time.Duration {
	return durationOr(c.Redis.LockTTL, defaultLockTTLDuration)
}

// RateLimitWindow returns the rate limit window.
func (c *Config) RateLimitWindow() time.Duration {
	return durationOr(c.RateLimit.Window, defaultRateWindowDuration)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}
