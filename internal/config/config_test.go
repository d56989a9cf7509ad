package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, DefaultClaudeBinary, cfg.Claude.Binary)
	assert.Equal(t, DefaultInactivityMinutes, cfg.Tracker.InactivityTimeoutMinutes)
	assert.Equal(t, DefaultTrackerMaxRetries, cfg.Tracker.MaxRetries)
	assert.Equal(t, DefaultSweepIntervalMinutes, cfg.Tracker.SweepIntervalMinutes)
	assert.Equal(t, DefaultMaxBackups, cfg.Store.MaxBackups)
}

func TestLoadProjectConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	content := `{
		// project overrides
		"port": 9090,
		"claude": {"binary": "/usr/local/bin/claude", "model": "sonnet"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clauderelay.jsonc"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Claude.Binary)
	assert.Equal(t, "sonnet", cfg.Claude.Model)
}

func TestLoadEnvInterpolation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TEST_RELAY_MODEL", "opus")
	dir := t.TempDir()

	content := `{"claude": {"model": "{env:TEST_RELAY_MODEL}"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clauderelay.json"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "opus", cfg.Claude.Model)
}

func TestLoadFileInterpolation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.txt"), []byte("haiku\n"), 0644))
	content := `{"claude": {"model": "{file:model.txt}"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clauderelay.json"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "haiku", cfg.Claude.Model)
}

func TestEnvOverridesBeatFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CLAUDERELAY_PORT", "7070")
	dir := t.TempDir()

	content := `{"port": 9090}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clauderelay.json"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
}

func TestInlineConfigContent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CLAUDERELAY_CONFIG_CONTENT", `{"logLevel": "DEBUG"}`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	paths := GetPaths()
	assert.Equal(t, "/tmp/xdg-data/clauderelay", paths.Data)
	assert.Equal(t, filepath.Join(paths.Data, "sessions.json"), paths.StorePath())
	assert.Equal(t, filepath.Join(paths.Data, "backups"), paths.BackupsPath())
}
