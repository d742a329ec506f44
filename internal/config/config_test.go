package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8100, cfg.Server.Port)
	assert.Equal(t, "https://api.dataforseo.com/v3", cfg.DataForSEO.BaseURL)
	assert.Equal(t, 100, cfg.DataForSEO.RateLimit)
	assert.Equal(t, "United States", cfg.DataForSEO.Location)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.True(t, cfg.Engine.Parallel)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
dataforseo:
  rate_limit: 25
engine:
  parallel: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 25, cfg.DataForSEO.RateLimit)
	assert.False(t, cfg.Engine.Parallel)
	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoadEnvOverridesWinOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	t.Setenv("APP_SERVER_PORT", "9100")
	t.Setenv("APP_DATAFORSEO_USERNAME", "svc@example.com")
	t.Setenv("APP_DATAFORSEO_PASSWORD", "hunter2")
	t.Setenv("APP_CACHE_BACKEND", "off")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "svc@example.com", cfg.DataForSEO.Username)
	assert.Equal(t, "hunter2", cfg.DataForSEO.Password)
	assert.Equal(t, "off", cfg.Cache.Backend)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, ParseDuration("90s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-5s", time.Minute))
}
