package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Pipeline.MaxParallelism)
	assert.InDelta(t, 0.2, cfg.Store.EMAAlpha, 1e-9)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "pixelsense", cfg.Name)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	doc := `
pipeline:
  max_parallelism: 8
cache:
  capacity: 64
logging:
  debug_mode: true
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(doc), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pipeline.MaxParallelism)
	assert.Equal(t, 64, cfg.Cache.Capacity)
	assert.True(t, cfg.Logging.DebugMode)
	// Untouched sections keep their defaults.
	assert.Equal(t, "500ms", cfg.Store.FlushInterval)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	doc := "pipeline:\n  max_parallelism: 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(doc), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallelism")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PIXELSENSE_MAX_PARALLELISM", "16")
	t.Setenv("PIXELSENSE_LOG_LEVEL", "debug")
	t.Setenv("PIXELSENSE_VISION_API_KEY", "key-from-env")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Pipeline.MaxParallelism)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "key-from-env", cfg.Vision.APIKey)
}

func TestPathResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = "/state"

	cfg.Store.DatabasePath = "data/sig.db"
	assert.Equal(t, filepath.Join("/state", "data", "sig.db"), cfg.DatabasePath())

	cfg.Store.DatabasePath = "/abs/sig.db"
	assert.Equal(t, "/abs/sig.db", cfg.DatabasePath())

	cfg.Store.DatabasePath = ":memory:"
	assert.Equal(t, ":memory:", cfg.DatabasePath())

	cfg.Pipeline.ManifestDir = "manifests"
	assert.Equal(t, filepath.Join("/state", "manifests"), cfg.ManifestDir())
}
