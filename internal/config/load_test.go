package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

// clearEnv blanks every override variable so the host environment cannot
// leak into Resolve.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, name := range []string{
		EnvConfig, EnvEncryptionKey, EnvClientID, EnvClientSecret, EnvTenantID,
		EnvFolderID, EnvFolderName, EnvWebhookURL, EnvBearerToken, EnvDatabaseURL,
		EnvSessionSecret, EnvRedisURL, EnvListenAddr, EnvBaseURL, EnvAWSRegion,
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
log_level = "debug"
log_format = "json"
listen_addr = "127.0.0.1:3000"
base_url = "https://ragdesk.example.com"
http_timeout = "10s"
shutdown_timeout = "20s"

[database]
driver = "postgres"
dsn = "postgres://ragdesk:pw@db:5432/ragdesk?sslmode=disable"

[crypto]
key_file = "/etc/ragdesk/key"

[microsoft]
client_id = "app-id"
client_secret = "ssm:/ragdesk/microsoft-secret"
tenant_id = "contoso.onmicrosoft.com"

[onedrive]
folder_id = "01ROOT"
folder_name = "knowledge"

[n8n]
webhook_url = "https://n8n.example.com/webhook/chat"
bearer_token = "tok"

[session]
secret = "0123456789abcdef0123456789abcdef"
ttl = "8h"
cookie_secure = true

[redis]
url = "redis://cache:6379/1"
lock_ttl = "45s"

[rate_limit]
requests = 5
window = "30s"

[aws]
region = "ap-southeast-1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:3000", cfg.ListenAddr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "/etc/ragdesk/key", cfg.Crypto.KeyFile)
	assert.Equal(t, "ssm:/ragdesk/microsoft-secret", cfg.Microsoft.ClientSecret)
	assert.Equal(t, "01ROOT", cfg.OneDrive.FolderID)
	assert.Equal(t, "knowledge", cfg.OneDrive.FolderName)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, "ap-southeast-1", cfg.AWS.Region)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[onedrive]
folder_id = "01ROOT"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "01ROOT", cfg.OneDrive.FolderID)
	assert.Equal(t, "rag-chatbot", cfg.OneDrive.FolderName)
	assert.Equal(t, "common", cfg.Microsoft.TenantID)
	assert.Equal(t, 20, cfg.RateLimit.Requests)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "log_level = \n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeTestConfig(t, `
log_level = "loud"

[rate_limit]
requests = 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "rate_limit.requests")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestResolve_Precedence(t *testing.T) {
	clearEnv(t)

	path := writeTestConfig(t, `
listen_addr = ":7000"

[microsoft]
client_id = "file-client"
tenant_id = "file-tenant"
`)

	t.Setenv(EnvTenantID, "env-tenant")

	cfg, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{ListenAddr: ":9999"})
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.Microsoft.ClientID)
	assert.Equal(t, "env-tenant", cfg.Microsoft.TenantID)
	assert.Equal(t, ":9999", cfg.ListenAddr)
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	clearEnv(t)

	envPath := writeTestConfig(t, `log_level = "warn"`)
	cliPath := writeTestConfig(t, `log_level = "error"`)

	cfg, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestResolve_EnvPostgresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDatabaseURL, "postgres://u:p@localhost/ragdesk")

	cfg, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}, CLIOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@localhost/ragdesk", cfg.Database.DSN)
}

func TestResolve_EnvValueFailsValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBaseURL, "not a url")

	_, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}
