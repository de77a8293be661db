package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
cache_dir: /var/cache/pbocache
workers: 4
timeout: 90s
binary_config: both

game_data:
  roots:
    - /opt/arma3/mods
  extensions:
    - cpp
    - sqf

missions:
  roots:
    - /opt/arma3/mpmissions

skip:
  - Name startsWith "dlc_"

notifications:
  detailed: true
  skip_empty_run: true
  service:
    discord: https://discord.example/webhook
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	require.NoError(t, Init(configPath))

	assert.Equal(t, "/var/cache/pbocache", Config.CacheDir)
	assert.Equal(t, 4, Config.Workers)
	assert.Equal(t, 90*time.Second, Config.Timeout)
	assert.Equal(t, "both", Config.BinaryConfig)

	assert.Equal(t, []string{"/opt/arma3/mods"}, Config.GameData.Roots)
	assert.Equal(t, []string{"cpp", "sqf"}, Config.GameData.Extensions)

	assert.Equal(t, []string{"/opt/arma3/mpmissions"}, Config.Missions.Roots)
	// extension default survives a partial kind override
	assert.Equal(t, []string{"hpp", "cpp", "sqf", "sqm"}, Config.Missions.Extensions)

	assert.Equal(t, []string{`Name startsWith "dlc_"`}, Config.Skip)

	assert.True(t, Config.Notifications.Detailed)
	assert.True(t, Config.Notifications.SkipEmptyRun)
	assert.Equal(t, "https://discord.example/webhook", Config.Notifications.Service.Discord)
}

func TestInit_MissingFileUsesDefaults(t *testing.T) {
	require.NoError(t, Init(filepath.Join(t.TempDir(), "nope.yaml")))

	assert.NotEmpty(t, Config.CacheDir)
	assert.Greater(t, Config.Workers, 0)
	assert.Equal(t, 5*time.Minute, Config.Timeout)
	assert.Equal(t, "text", Config.BinaryConfig)
	assert.Equal(t, []string{"hpp", "cpp", "sqf"}, Config.GameData.Extensions)
	assert.Empty(t, Config.GameData.Roots)
}
