package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, time.Hour, cfg.Updater.CheckInterval)
	assert.True(t, cfg.Updater.AutoDownload)
	assert.False(t, cfg.Updater.Silent)
	assert.False(t, cfg.Updater.AllowPrerelease)
	assert.Equal(t, ThemeDark, cfg.WindowLoader.Theme)
	assert.Nil(t, cfg.IsDev)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
app:
  name: notes
  version: 2.1.0
window:
  width: 1400
is_dev: true
window_loader:
  theme: light
updater:
  check_interval: 15m
  auto_download: false
  owner: acme
  repo: notes
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, "notes", cfg.App.Name)
	assert.Equal(t, "2.1.0", cfg.App.Version)
	assert.Equal(t, 1400, cfg.Window.Width)
	require.NotNil(t, cfg.IsDev)
	assert.True(t, *cfg.IsDev)
	assert.Equal(t, ThemeLight, cfg.WindowLoader.Theme)
	assert.Equal(t, 15*time.Minute, cfg.Updater.CheckInterval)
	assert.False(t, cfg.Updater.AutoDownload)
	assert.Equal(t, "acme", cfg.Updater.Owner)

	override := cfg.SettingsOverride()
	s := MergeSettings(DefaultSettings(), override)
	assert.Equal(t, "notes", s.App.Name)
	assert.Equal(t, 800, s.Window.Height)
	assert.True(t, s.IsDev)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DESKHOST_UPDATER_SILENT", "true")
	t.Setenv("DESKHOST_UPDATER_CHECK_INTERVAL", "2h")
	t.Setenv("DESKHOST_APP_NAME", "from-env")

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.True(t, cfg.Updater.Silent)
	assert.Equal(t, 2*time.Hour, cfg.Updater.CheckInterval)
	assert.Equal(t, "from-env", cfg.App.Name)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window_loader:\n  theme: neon\n"), 0600))

	_, err := Load(path, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window_loader.theme")
}

func TestSaveConfigRoundTripsThroughLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := DefaultConfig()
	cfg.Updater.CheckInterval = 30 * time.Minute
	require.NoError(t, SaveConfig(cfg, path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "check_interval: 30m0s")

	err = SaveConfig(cfg, path, false)
	require.Error(t, err, "existing file must not be overwritten")
	require.NoError(t, SaveConfig(cfg, path, true))

	loaded, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, loaded.Updater.CheckInterval)
}
