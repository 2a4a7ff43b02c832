package config

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command. Secret
// values are replaced with a marker; ssm: references are shown as-is since
// they name a parameter rather than hold its value.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	ew.printf("log_level        = %q\n", cfg.LogLevel)
	ew.printf("log_format       = %q\n", cfg.LogFormat)
	ew.printf("listen_addr      = %q\n", cfg.ListenAddr)
	ew.printf("base_url         = %q\n", cfg.BaseURL)
	ew.printf("http_timeout     = %q\n", cfg.HTTPTimeout)
	ew.printf("shutdown_timeout = %q\n\n", cfg.ShutdownTimeout)

	ew.printf("[database]\n")
	ew.printf("  driver = %q\n", cfg.Database.Driver)
	ew.printf("  dsn    = %q\n\n", redactDSN(cfg.Database.DSN))

	ew.printf("[crypto]\n")
	ew.printf("  encryption_key = %q\n", secretValue(cfg.Crypto.EncryptionKey))
	ew.printf("  key_file       = %q\n\n", cfg.Crypto.KeyFile)

	ew.printf("[microsoft]\n")
	ew.printf("  client_id      = %q\n", cfg.Microsoft.ClientID)
	ew.printf("  client_secret  = %q\n", secretValue(cfg.Microsoft.ClientSecret))
	ew.printf("  tenant_id      = %q\n", cfg.Microsoft.TenantID)
	ew.printf("  graph_base_url = %q\n\n", cfg.Microsoft.GraphBaseURL)

	ew.printf("[onedrive]\n")
	ew.printf("  folder_id   = %q\n", cfg.OneDrive.FolderID)
	ew.printf("  folder_name = %q\n\n", cfg.OneDrive.FolderName)

	ew.printf("[n8n]\n")
	ew.printf("  webhook_url    = %q\n", cfg.N8N.WebhookURL)
	ew.printf("  bearer_token   = %q\n", secretValue(cfg.N8N.BearerToken))
	ew.printf("  record_history = %t\n\n", cfg.N8N.RecordHistory)

	ew.printf("[session]\n")
	ew.printf("  secret        = %q\n", secretValue(cfg.Session.Secret))
	ew.printf("  ttl           = %q\n", cfg.Session.TTL)
	ew.printf("  cookie_secure = %t\n\n", cfg.Session.CookieSecure)

	ew.printf("[redis]\n")
	ew.printf("  url      = %q\n", redactDSN(cfg.Redis.URL))
	ew.printf("  lock_ttl = %q\n\n", cfg.Redis.LockTTL)

	ew.printf("[rate_limit]\n")
	ew.printf("  requests = %d\n", cfg.RateLimit.Requests)
	ew.printf("  window   = %q\n\n", cfg.RateLimit.Window)

	ew.printf("[aws]\n")
	ew.printf("  region = %q\n", cfg.AWS.Region)

	return ew.err
}

// Redacted returns a copy of cfg with secrets masked the same way
// RenderEffective masks them.
func Redacted(cfg *Config) *Config {
	cp := *cfg

	cp.Database.DSN = redactDSN(cfg.Database.DSN)
	cp.Crypto.EncryptionKey = secretValue(cfg.Crypto.EncryptionKey)
	cp.Microsoft.ClientSecret = secretValue(cfg.Microsoft.ClientSecret)
	cp.N8N.BearerToken = secretValue(cfg.N8N.BearerToken)
	cp.Session.Secret = secretValue(cfg.Session.Secret)
	cp.Redis.URL = redactDSN(cfg.Redis.URL)

	return &cp
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func secretValue(v string) string {
	if v == "" || isSecretRef(v) {
		return v
	}

	return redacted
}

// redactDSN masks the password in URL-shaped connection strings. Plain
// file paths are returned unchanged.
func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return redacted
	}

	return u.Redacted()
}
