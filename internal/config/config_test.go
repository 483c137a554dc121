package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadConfig_ParsesFileAndDefaults(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	yaml := `
server:
  port: "9000"
database:
  dsn: "postgres://test"
openai:
  enabled: true
  apikey: sk-test
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte(yaml), 0o644))

	v, err := LoadConfig("config")
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "postgres://test", cfg.Database.DSN)
	assert.True(t, cfg.OpenAI.Enabled)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)

	// Unset keys fall back to defaults.
	assert.Equal(t, "inbound_messages", cfg.Database.NotifyChannel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "en", cfg.Intake.DefaultLanguage)
	assert.Equal(t, 100, cfg.Intake.HistoryLimit)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	chdirTemp(t)

	_, err := LoadConfig("config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"),
		[]byte("database:\n  dsn: \"postgres://file\"\n"), 0o644))
	t.Setenv("DATABASE_DSN", "postgres://env")

	v, err := LoadConfig("config")
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.DSN)
}
