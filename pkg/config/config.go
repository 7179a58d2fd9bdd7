// Package config loads simulator configuration from an optional YAML file
// with TELESIM_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the simulator configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Limits  LimitsConfig  `yaml:"limits"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP control surface settings
type ServerConfig struct {
	Port          int    `yaml:"port"`
	AllowedOrigin string `yaml:"allowed_origin"`
}

// StoreConfig contains document store connection settings
type StoreConfig struct {
	URI                string `yaml:"uri"`
	Database           string `yaml:"database"`
	IncidentCollection string `yaml:"incident_collection"`
	RepairCollection   string `yaml:"repair_collection"`
	RunCollection      string `yaml:"run_collection"`
	RepairTTLDays      int    `yaml:"repair_ttl_days"`
}

// CatalogConfig contains location catalog settings
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// LimitsConfig contains producer caps and observability settings
type LimitsConfig struct {
	MaxShards int `yaml:"max_shards"`
	MaxBatch  int `yaml:"max_batch"`
	MaxRate   int `yaml:"max_rate"`
	WindowSec int `yaml:"window_sec"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          5050,
			AllowedOrigin: "*",
		},
		Store: StoreConfig{
			URI:                "mongodb://localhost:27017",
			Database:           "telesim",
			IncidentCollection: "incidents",
			RepairCollection:   "repairs",
			RunCollection:      "runs",
			RepairTTLDays:      0,
		},
		Catalog: CatalogConfig{
			Path: "data/cities.json",
		},
		Limits: LimitsConfig{
			MaxShards: 128,
			MaxBatch:  50000,
			MaxRate:   1000000,
			WindowSec: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand ${VAR} references so secrets can stay out of the file.
		expanded := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides config fields from TELESIM_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Store.URI, "TELESIM_MONGO_URI")
	setString(&cfg.Store.Database, "TELESIM_DB")
	setString(&cfg.Store.IncidentCollection, "TELESIM_INCIDENT_COLLECTION")
	setString(&cfg.Store.RepairCollection, "TELESIM_REPAIR_COLLECTION")
	setString(&cfg.Store.RunCollection, "TELESIM_RUN_COLLECTION")
	setString(&cfg.Catalog.Path, "TELESIM_CATALOG")
	setString(&cfg.Server.AllowedOrigin, "TELESIM_ALLOWED_ORIGIN")
	setString(&cfg.Logging.Level, "TELESIM_LOG_LEVEL")
	setString(&cfg.Logging.Format, "TELESIM_LOG_FORMAT")
	setInt(&cfg.Server.Port, "TELESIM_PORT")
	setInt(&cfg.Limits.WindowSec, "TELESIM_WINDOW_SEC")
	setInt(&cfg.Limits.MaxShards, "TELESIM_MAX_SHARDS")
	setInt(&cfg.Limits.MaxBatch, "TELESIM_MAX_BATCH")
	setInt(&cfg.Limits.MaxRate, "TELESIM_MAX_RATE")
	setInt(&cfg.Store.RepairTTLDays, "TELESIM_REPAIR_TTL_DAYS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.URI == "" {
		return fmt.Errorf("store.uri is required")
	}
	if c.Store.Database == "" {
		return fmt.Errorf("store.database is required")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535]")
	}
	if c.Limits.WindowSec < 1 {
		return fmt.Errorf("limits.window_sec must be at least 1")
	}
	if c.Limits.MaxShards < 1 || c.Limits.MaxBatch < 1 || c.Limits.MaxRate < 1 {
		return fmt.Errorf("limits caps must be at least 1")
	}
	return nil
}
