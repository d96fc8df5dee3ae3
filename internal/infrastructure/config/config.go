package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	VFS     VFSConfig     `yaml:"vfs" toml:"vfs"`
	Index   IndexConfig   `yaml:"index" toml:"index"`
	Logging LogConfig     `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// VFSConfig holds file system configuration.
type VFSConfig struct {
	Root              string        `envconfig:"VFS_ROOT" default:"." yaml:"root" toml:"root"`
	CreateRoot        bool          `envconfig:"VFS_CREATE_ROOT" default:"false" yaml:"create_root" toml:"create_root"`
	LockSweepInterval time.Duration `envconfig:"VFS_LOCK_SWEEP" default:"0s" yaml:"lock_sweep" toml:"lock_sweep"`
	TarCompression    string        `envconfig:"VFS_TAR_COMPRESSION" default:"none" yaml:"tar_compression" toml:"tar_compression"`
}

// IndexConfig holds search index configuration.
type IndexConfig struct {
	Enabled     bool          `envconfig:"VFS_INDEX_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
	MaxFileSize int64         `envconfig:"VFS_INDEX_MAX_FILE_SIZE" default:"1048576" yaml:"max_file_size" toml:"max_file_size"`
	TripAfter   uint32        `envconfig:"VFS_INDEX_TRIP_AFTER" default:"5" yaml:"trip_after" toml:"trip_after"`
	Cooldown    time.Duration `envconfig:"VFS_INDEX_COOLDOWN" default:"30s" yaml:"cooldown" toml:"cooldown"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads configuration from the environment and overlays the file
// at path. Files ending in .toml are read as TOML, anything else as YAML.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		unmarshal = toml.Unmarshal
	}
	if err := unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		VFS: VFSConfig{
			Root:           ".",
			TarCompression: "none",
		},
		Index: IndexConfig{
			Enabled:     true,
			MaxFileSize: 1 << 20,
			TripAfter:   5,
			Cooldown:    30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
