package config

import (
	"os"
	"path/filepath"
)

const (
	appName = "ragdesk"

	// localConfigFile is looked for in the working directory first.
	localConfigFile = "ragdesk.toml"
	configFileName  = "config.toml"
	systemConfigDir = "/etc/ragdesk"

	// envStateDirectory is set by systemd for units with StateDirectory=.
	envStateDirectory = "STATE_DIRECTORY"
)

// configCandidates lists where a config file may live, in lookup order.
func configCandidates() []string {
	candidates := []string{localConfigFile}

	if dir := userDir("XDG_CONFIG_HOME", ".config"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, configFileName))
	}

	return append(candidates, filepath.Join(systemConfigDir, configFileName))
}

// DefaultConfigPath returns the first existing candidate config file, or ""
// when there is none and defaults plus environment apply.
func DefaultConfigPath() string {
	for _, path := range configCandidates() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// DefaultDataDir is where the sqlite database lives when database.dsn is
// not set: the systemd state directory, else the XDG data directory, else
// ./data.
func DefaultDataDir() string {
	if dir := os.Getenv(envStateDirectory); dir != "" {
		return dir
	}

	if dir := userDir("XDG_DATA_HOME", filepath.Join(".local", "share")); dir != "" {
		return dir
	}

	return "data"
}

// userDir returns $envVar/ragdesk, or ~/<fallback>/ragdesk.
func userDir(envVar, fallback string) string {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}

	return filepath.Join(home, fallback, appName)
}
