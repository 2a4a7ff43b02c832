package config

import (
	"os"
	"strings"
)

// Environment variable names for overrides.
const (
	EnvConfig  = "RAGDESK_CONFIG"
	EnvEnvFile = "RAGDESK_ENV_FILE"

	EnvEncryptionKey = "ENCRYPTION_KEY"
	EnvClientID      = "MICROSOFT_CLIENT_ID"
	EnvClientSecret  = "MICROSOFT_CLIENT_SECRET"
	EnvTenantID      = "MICROSOFT_TENANT_ID"
	EnvFolderID      = "RAG_CHATBOT_FOLDER_ID"
	EnvFolderName    = "RAG_CHATBOT_FOLDER_NAME"
	EnvWebhookURL    = "N8N_WEBHOOK_URL"
	EnvBearerToken   = "N8N_BEARER_TOKEN"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvSessionSecret = "SESSION_SECRET"
	EnvRedisURL      = "REDIS_URL"
	EnvListenAddr    = "RAGDESK_LISTEN_ADDR"
	EnvBaseURL       = "RAGDESK_BASE_URL"
	EnvAWSRegion     = "AWS_REGION"
)

const (
	defaultDotEnvFile  = ".env"
	postgresScheme     = "postgres://"
	postgresSchemeLong = "postgresql://"
)

// EnvOverrides holds values derived from environment variables that decide
// where configuration is read from. Value overrides are applied separately
// by ApplyEnvOverrides once the file is loaded.
type EnvOverrides struct {
	ConfigPath string // RAGDESK_CONFIG: override config file path
	EnvFile    string // RAGDESK_ENV_FILE: .env path (default ".env")
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	envFile := os.Getenv(EnvEnvFile)
	if envFile == "" {
		envFile = defaultDotEnvFile
	}

	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		EnvFile:    envFile,
	}
}

// ApplyEnvOverrides copies non-empty environment values onto cfg. lookup is
// normally os.Getenv. A DATABASE_URL with a postgres scheme also switches
// the driver to postgres.
func ApplyEnvOverrides(cfg *Config, lookup func(string) string) {
	set := func(dst *string, name string) {
		if v := lookup(name); v != "" {
			*dst = v
		}
	}

	set(&cfg.Crypto.EncryptionKey, EnvEncryptionKey)
	set(&cfg.Microsoft.ClientID, EnvClientID)
	set(&cfg.Microsoft.ClientSecret, EnvClientSecret)
	set(&cfg.Microsoft.TenantID, EnvTenantID)
	set(&cfg.OneDrive.FolderID, EnvFolderID)
	set(&cfg.OneDrive.FolderName, EnvFolderName)
	set(&cfg.N8N.WebhookURL, EnvWebhookURL)
	set(&cfg.N8N.BearerToken, EnvBearerToken)
	set(&cfg.Session.Secret, EnvSessionSecret)
	set(&cfg.Redis.URL, EnvRedisURL)
	set(&cfg.ListenAddr, EnvListenAddr)
	set(&cfg.BaseURL, EnvBaseURL)
	set(&cfg.AWS.Region, EnvAWSRegion)

	if dsn := lookup(EnvDatabaseURL); dsn != "" {
		cfg.Database.DSN = dsn
		if isPostgresURL(dsn) {
			cfg.Database.Driver = "postgres"
		}
	}
}

func isPostgresURL(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, postgresScheme) || strings.HasPrefix(lower, postgresSchemeLong)
}
