// Package config holds the engine's single immutable configuration record.
// It is loaded once at startup and passed by reference; nothing in this
// codebase mutates a Config after Load/Default returns it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ArtifactBackend selects where the executor writes job artifacts.
type ArtifactBackend string

const (
	ArtifactBackendLocal ArtifactBackend = "local"
	ArtifactBackendS3    ArtifactBackend = "s3"
)

// Config holds every tunable the scheduler, executor, and ambient stack
// need. All fields are read-only after construction.
type Config struct {
	MaxWorkers         int    `yaml:"max_workers"`
	MaxActiveUsers     int    `yaml:"max_active_users"`
	TileSize           int    `yaml:"tile_size"`
	TileOverlap        int    `yaml:"tile_overlap"`
	MaxJobsPerWorkflow int    `yaml:"max_jobs_per_workflow"`
	EnableInstantSeg   bool   `yaml:"enable_instantseg"`
	EventBufferSize    int    `yaml:"event_buffer_size"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	ArtifactBackend ArtifactBackend `yaml:"artifact_backend"`
	ArtifactRoot    string          `yaml:"artifact_root"` // local backend: results directory root

	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

// Default returns sensible defaults for a single-process deployment.
func Default() Config {
	return Config{
		MaxWorkers:         2,
		MaxActiveUsers:     3,
		TileSize:           1024,
		TileOverlap:        64,
		MaxJobsPerWorkflow: 10,
		EnableInstantSeg:   false,
		EventBufferSize:    64,
		LogLevel:           "info",
		LogFormat:          "text",
		ArtifactBackend:    ArtifactBackendLocal,
		ArtifactRoot:       "uploads/results",
	}
}

// Load overlays a YAML config file onto Default(). A missing path is not
// an error; it simply returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the invariants each config key must satisfy.
func (c Config) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.MaxActiveUsers < 1 {
		return fmt.Errorf("max_active_users must be >= 1, got %d", c.MaxActiveUsers)
	}
	if c.TileSize < 1 {
		return fmt.Errorf("tile_size must be >= 1, got %d", c.TileSize)
	}
	if c.TileOverlap < 0 {
		return fmt.Errorf("tile_overlap must be >= 0, got %d", c.TileOverlap)
	}
	if c.MaxJobsPerWorkflow < 1 {
		return fmt.Errorf("max_jobs_per_workflow must be >= 1, got %d", c.MaxJobsPerWorkflow)
	}
	if c.ArtifactBackend == ArtifactBackendS3 && c.S3Bucket == "" {
		return fmt.Errorf("s3_bucket is required when artifact_backend is %q", ArtifactBackendS3)
	}
	return nil
}
