package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "v2", cfg.Dashboard.KPISchema)
	assert.Equal(t, 12, cfg.Dashboard.TopThemes)
	assert.True(t, cfg.Dashboard.CleanThemes)
	assert.Equal(t, "DASHBOARD_DATA", cfg.Output.JSVariable)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 8080
dashboard:
  kpi_schema: v1
  top_themes: 5
watch:
  debounce: 500ms
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("VEILLE_OLLAMA_MODEL", "mistral:7b")
	t.Setenv("VEILLE_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "v1", cfg.Dashboard.KPISchema)
	assert.Equal(t, 5, cfg.Dashboard.TopThemes)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "mistral:7b", cfg.Ollama.Model)
	// untouched keys keep their defaults
	assert.Equal(t, "Veille Auto", cfg.Dashboard.AutoSource)
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	require.NoError(t, WriteDefault(path))

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, Default().Store, AppConfig.Store)
	assert.Equal(t, Default().Sources, AppConfig.Sources)
}
