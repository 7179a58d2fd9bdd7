package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5050, cfg.Server.Port)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.URI)
	assert.Equal(t, "telesim", cfg.Store.Database)
	assert.Equal(t, "incidents", cfg.Store.IncidentCollection)
	assert.Equal(t, "repairs", cfg.Store.RepairCollection)
	assert.Equal(t, "runs", cfg.Store.RunCollection)
	assert.Equal(t, "data/cities.json", cfg.Catalog.Path)
	assert.Equal(t, 10, cfg.Limits.WindowSec)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 6060
store:
  database: telesim_test
limits:
  window_sec: 30
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "telesim_test", cfg.Store.Database)
	assert.Equal(t, 30, cfg.Limits.WindowSec)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.URI)
	assert.Equal(t, 128, cfg.Limits.MaxShards)
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("TEST_MONGO_HOST", "mongo.internal")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("store:\n  uri: mongodb://${TEST_MONGO_HOST}:27017\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://mongo.internal:27017", cfg.Store.URI)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELESIM_MONGO_URI", "mongodb://other:27017")
	t.Setenv("TELESIM_DB", "override")
	t.Setenv("TELESIM_PORT", "7070")
	t.Setenv("TELESIM_WINDOW_SEC", "20")
	t.Setenv("TELESIM_MAX_RATE", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://other:27017", cfg.Store.URI)
	assert.Equal(t, "override", cfg.Store.Database)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Limits.WindowSec)
	assert.Equal(t, 1000000, cfg.Limits.MaxRate, "unparseable override is ignored")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing uri", func(c *Config) { c.Store.URI = "" }, "store.uri"},
		{"missing database", func(c *Config) { c.Store.Database = "" }, "store.database"},
		{"missing catalog", func(c *Config) { c.Catalog.Path = "" }, "catalog.path"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad window", func(c *Config) { c.Limits.WindowSec = 0 }, "window_sec"},
		{"bad caps", func(c *Config) { c.Limits.MaxRate = 0 }, "caps"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
