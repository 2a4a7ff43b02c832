package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minHTTPTimeout     = 1 * time.Second
	minShutdownTimeout = 1 * time.Second
	minSessionTTL      = 5 * time.Minute
	minLockTTL         = 1 * time.Second
	minRateWindow      = 1 * time.Second
	minRateRequests    = 1
	minSessionSecret   = 32
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogLevel(cfg.LogLevel)...)
	errs = append(errs, validateLogFormat(cfg.LogFormat)...)
	errs = append(errs, validateServer(cfg)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateMicrosoft(&cfg.Microsoft)...)
	errs = append(errs, validateURL("n8n.webhook_url", cfg.N8N.WebhookURL, false)...)
	errs = append(errs, validateDurationMin("session.ttl", cfg.Session.TTL, minSessionTTL)...)
	errs = append(errs, validateDurationMin("redis.lock_ttl", cfg.Redis.LockTTL, minLockTTL)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)

	if strings.TrimSpace(cfg.OneDrive.FolderName) == "" {
		errs = append(errs, errors.New("onedrive.folder_name: must not be empty"))
	}

	return errors.Join(errs...)
}

// ValidateServe checks the settings `ragdesk serve` cannot start without.
// Other commands (migrate, keygen) run with a partial config, so these are
// not part of Validate.
func ValidateServe(cfg *Config) error {
	var errs []error

	required := []struct {
		field string
		value string
		env   string
	}{
		{"microsoft.client_id", cfg.Microsoft.ClientID, EnvClientID},
		{"microsoft.client_secret", cfg.Microsoft.ClientSecret, EnvClientSecret},
		{"n8n.webhook_url", cfg.N8N.WebhookURL, EnvWebhookURL},
		{"session.secret", cfg.Session.Secret, EnvSessionSecret},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s: required (or set %s)", r.field, r.env))
		}
	}

	if cfg.Session.Secret != "" && !isSecretRef(cfg.Session.Secret) && len(cfg.Session.Secret) < minSessionSecret {
		errs = append(errs, fmt.Errorf("session.secret: must be at least %d bytes", minSessionSecret))
	}

	if cfg.Crypto.EncryptionKey == "" && cfg.Crypto.KeyFile == "" {
		errs = append(errs, fmt.Errorf(
			"crypto: one of encryption_key or key_file is required (or set %s)", EnvEncryptionKey))
	}

	return errors.Join(errs...)
}

// isSecretRef reports whether v is resolved later from a secret store, in
// which case its length is unknown here.
func isSecretRef(v string) bool {
	return strings.HasPrefix(v, "ssm:")
}

func validateServer(cfg *Config) []error {
	var errs []error

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr: must not be empty"))
	}

	errs = append(errs, validateURL("base_url", cfg.BaseURL, true)...)
	errs = append(errs, validateDurationMin("http_timeout", cfg.HTTPTimeout, minHTTPTimeout)...)
	errs = append(errs, validateDurationMin("shutdown_timeout", cfg.ShutdownTimeout, minShutdownTimeout)...)

	return errs
}

var validDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
}

func validateDatabase(d *DatabaseConfig) []error {
	var errs []error

	if !validDrivers[d.Driver] {
		errs = append(errs, fmt.Errorf("database.driver: must be one of sqlite, postgres; got %q", d.Driver))
	}

	if strings.TrimSpace(d.DSN) == "" {
		errs = append(errs, errors.New("database.dsn: must not be empty"))
	}

	return errs
}

func validateMicrosoft(m *MicrosoftConfig) []error {
	var errs []error

	if strings.TrimSpace(m.TenantID) == "" {
		errs = append(errs, errors.New("microsoft.tenant_id: must not be empty"))
	}

	errs = append(errs, validateURL("microsoft.graph_base_url", m.GraphBaseURL, true)...)

	return errs
}

func validateRateLimit(r *RateLimitConfig) []error {
	var errs []error

	if r.Requests < minRateRequests {
		errs = append(errs, fmt.Errorf("rate_limit.requests: must be >= %d, got %d", minRateRequests, r.Requests))
	}

	errs = append(errs, validateDurationMin("rate_limit.window", r.Window, minRateWindow)...)

	return errs
}

// validateURL checks that value is an absolute http(s) URL. Empty values
// pass unless required is set.
func validateURL(field, value string, required bool) []error {
	if value == "" {
		if required {
			return []error{fmt.Errorf("%s: must not be empty", field)}
		}

		return nil
	}

	u, err := url.Parse(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid URL %q: %w", field, value, err)}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, value)}
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
