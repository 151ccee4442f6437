// Package config provides unified configuration for the telemetry daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for the telemetry storage core.
type Config struct {
	// DataDir is the base directory for both databases and working files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// ProfileDir is the game server profile directory the producer writes
	// its JSON files under (the SST/ folder).
	ProfileDir string `json:"profile_dir" yaml:"profile_dir"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Archive pipeline configuration
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Retention configuration
	Retention RetentionConfig `json:"retention" yaml:"retention"`

	// ColdStorage configuration for exports of pruned data
	ColdStorage ColdStorageConfig `json:"cold_storage" yaml:"cold_storage"`
}

// SnapshotConfig holds position-snapshot collection configuration.
type SnapshotConfig struct {
	// SourceFile is the producer's online-players JSON file. Resolved
	// relative to ProfileDir when empty.
	SourceFile string `json:"source_file" yaml:"source_file"`

	// PollInterval is how often the collector reads the source file.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// RetentionDays is the pruning horizon for position records. Much
	// shorter than the archive horizon: positions are high-frequency.
	RetentionDays int `json:"retention_days" yaml:"retention_days"`
}

// ArchiveConfig holds ingestion pipeline configuration.
type ArchiveConfig struct {
	// TradesDir, LifeEventsDir, and ItemEventsDir are the per-family source
	// directories. Resolved relative to ProfileDir when empty.
	TradesDir     string `json:"trades_dir" yaml:"trades_dir"`
	LifeEventsDir string `json:"life_events_dir" yaml:"life_events_dir"`
	ItemEventsDir string `json:"item_events_dir" yaml:"item_events_dir"`

	// Interval is the spacing between scheduled archive runs.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// ClearFiles controls whether scheduled runs delete archived source
	// files after a successful per-family commit.
	ClearFiles bool `json:"clear_files" yaml:"clear_files"`
}

// RetentionConfig holds archive pruning configuration.
type RetentionConfig struct {
	// DaysToKeep is the archive retention horizon in days.
	DaysToKeep int `json:"days_to_keep" yaml:"days_to_keep"`

	// Interval is the spacing between scheduled pruning passes.
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// ColdStorageConfig holds configuration for exporting pruned archive rows
// before deletion.
type ColdStorageConfig struct {
	// Enabled controls whether pruning exports rows before deleting them.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data/telemetry",
		ProfileDir: "./profile/SST",
		Snapshot: SnapshotConfig{
			PollInterval:  10 * time.Second,
			RetentionDays: 7,
		},
		Archive: ArchiveConfig{
			Interval:   24 * time.Hour,
			ClearFiles: true,
		},
		Retention: RetentionConfig{
			DaysToKeep: 90,
			Interval:   24 * time.Hour,
		},
		ColdStorage: ColdStorageConfig{
			Enabled: false,
			Type:    "local",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir and
// ProfileDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/telemetry"
	}
	if c.ProfileDir == "" {
		c.ProfileDir = "./profile/SST"
	}

	if c.Snapshot.SourceFile == "" {
		c.Snapshot.SourceFile = filepath.Join(c.ProfileDir, "api", "online_players.json")
	}
	if c.Archive.TradesDir == "" {
		c.Archive.TradesDir = filepath.Join(c.ProfileDir, "trades")
	}
	if c.Archive.LifeEventsDir == "" {
		c.Archive.LifeEventsDir = filepath.Join(c.ProfileDir, "life_events")
	}
	if c.Archive.ItemEventsDir == "" {
		c.Archive.ItemEventsDir = filepath.Join(c.ProfileDir, "events")
	}
	if c.ColdStorage.Path == "" {
		c.ColdStorage.Path = filepath.Join(c.DataDir, "cold")
	}
}

// SnapshotDBPath returns the path to the position snapshot database.
func (c *Config) SnapshotDBPath() string {
	return filepath.Join(c.DataDir, "positions.db")
}

// ArchiveDBPath returns the path to the archive database.
func (c *Config) ArchiveDBPath() string {
	return filepath.Join(c.DataDir, "archive.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Snapshot.PollInterval <= 0 {
		return fmt.Errorf("snapshot.poll_interval must be positive, got %s", c.Snapshot.PollInterval)
	}
	if c.Snapshot.RetentionDays < 1 {
		return fmt.Errorf("snapshot.retention_days must be at least 1, got %d", c.Snapshot.RetentionDays)
	}

	if c.Archive.Interval <= 0 {
		return fmt.Errorf("archive.interval must be positive, got %s", c.Archive.Interval)
	}

	if c.Retention.DaysToKeep < 1 {
		return fmt.Errorf("retention.days_to_keep must be at least 1, got %d", c.Retention.DaysToKeep)
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive, got %s", c.Retention.Interval)
	}

	if c.ColdStorage.Type != "local" && c.ColdStorage.Type != "s3" {
		return fmt.Errorf("invalid cold storage type: %s (must be local or s3)", c.ColdStorage.Type)
	}
	if c.ColdStorage.Enabled && c.ColdStorage.Type == "s3" && c.ColdStorage.S3.Bucket == "" {
		return fmt.Errorf("cold_storage.s3.bucket is required when cold storage type is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SSTTEL_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SSTTEL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SSTTEL_PROFILE_DIR"); v != "" {
		cfg.ProfileDir = v
	}

	// Snapshot configuration
	if v := os.Getenv("SSTTEL_SNAPSHOT_SOURCE_FILE"); v != "" {
		cfg.Snapshot.SourceFile = v
	}
	if v := os.Getenv("SSTTEL_SNAPSHOT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshot.PollInterval = d
		}
	}
	if v := os.Getenv("SSTTEL_SNAPSHOT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Snapshot.RetentionDays = n
		}
	}

	// Archive configuration
	if v := os.Getenv("SSTTEL_ARCHIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.Interval = d
		}
	}
	if v := os.Getenv("SSTTEL_ARCHIVE_CLEAR_FILES"); v != "" {
		cfg.Archive.ClearFiles = v == "true" || v == "1"
	}

	// Retention configuration
	if v := os.Getenv("SSTTEL_RETENTION_DAYS_TO_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention.DaysToKeep = n
		}
	}
	if v := os.Getenv("SSTTEL_RETENTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.Interval = d
		}
	}

	// Cold storage configuration
	if v := os.Getenv("SSTTEL_COLD_STORAGE_ENABLED"); v != "" {
		cfg.ColdStorage.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SSTTEL_COLD_STORAGE_TYPE"); v != "" {
		cfg.ColdStorage.Type = v
	}
	if v := os.Getenv("SSTTEL_COLD_STORAGE_PATH"); v != "" {
		cfg.ColdStorage.Path = v
	}
	if v := os.Getenv("SSTTEL_S3_BUCKET"); v != "" {
		cfg.ColdStorage.S3.Bucket = v
	}
	if v := os.Getenv("SSTTEL_S3_REGION"); v != "" {
		cfg.ColdStorage.S3.Region = v
	}
	if v := os.Getenv("SSTTEL_S3_ENDPOINT"); v != "" {
		cfg.ColdStorage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.ColdStorage.Enabled && c.ColdStorage.Type == "local" {
		dirs = append(dirs, c.ColdStorage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
