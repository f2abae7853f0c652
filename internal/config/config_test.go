package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.ExecutorPort)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxMessageSize)
	assert.Equal(t, 5*time.Second, cfg.ScreenshotTimeout)
	assert.Equal(t, 25*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "computer-use-preview", cfg.DefaultModel)
	assert.Contains(t, cfg.Services, "executor")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deskrelay.yaml")
	content := "executor_port: 4000\nbridge_url: http://file:9000\nscreenshot_timeout: 2s\nservices:\n  recorder:\n    command: [\"ffmpeg\", \"-y\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv(EnvConfigFile, path)
	t.Setenv("BRIDGE_URL", "http://env:9001")
	t.Setenv("SERVICE_RECORDER_CMD", "ffmpeg -loglevel quiet")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.ExecutorPort)
	assert.Equal(t, "http://env:9001", cfg.BridgeURL)
	assert.Equal(t, 2*time.Second, cfg.ScreenshotTimeout)
	assert.Equal(t, []string{"ffmpeg", "-loglevel", "quiet"}, cfg.Services["recorder"].Command)
	assert.Contains(t, cfg.Services, "agent")
}

func TestLoadBridgeTimeoutFloor(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("BRIDGE_TIMEOUT_MS", "1000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MinBridgeTimeout, cfg.BridgeTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
