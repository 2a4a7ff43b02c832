package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDataDir_StateDirectoryWins(t *testing.T) {
	t.Setenv(envStateDirectory, "/var/lib/ragdesk")
	t.Setenv("XDG_DATA_HOME", "/srv/data")

	assert.Equal(t, "/var/lib/ragdesk", DefaultDataDir())
	assert.Equal(t, filepath.Join("/var/lib/ragdesk", defaultDBFileName), defaultDatabasePath())
}

func TestDefaultDataDir_XDG(t *testing.T) {
	t.Setenv(envStateDirectory, "")
	t.Setenv("XDG_DATA_HOME", "/srv/data")

	assert.Equal(t, filepath.Join("/srv/data", appName), DefaultDataDir())
}

func TestDefaultDataDir_Home(t *testing.T) {
	home := t.TempDir()
	t.Setenv(envStateDirectory, "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, ".local", "share", appName), DefaultDataDir())
}

func TestConfigCandidates_Order(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	assert.Equal(t, []string{
		localConfigFile,
		filepath.Join("/custom/config", appName, configFileName),
		filepath.Join(systemConfigDir, configFileName),
	}, configCandidates())
}

func TestDefaultConfigPath_FirstExisting(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())

	path := filepath.Join(xdg, appName, configFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.Equal(t, path, DefaultConfigPath())

	require.NoError(t, os.WriteFile(localConfigFile, nil, 0o600))
	assert.Equal(t, localConfigFile, DefaultConfigPath())
}
