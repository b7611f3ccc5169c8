// Package config defines the storage core's runtime tunables and loads
// them from YAML, following the plain-struct-plus-defaults convention used
// throughout this codebase rather than a configuration framework.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable exposed by the storage core.
type Config struct {
	BasePath          string        `yaml:"base_path"`
	PartitionSize     int           `yaml:"partition_size"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	ArchiveCompleted  bool          `yaml:"archive_completed"`
	ProcessInterval   time.Duration `yaml:"process_interval"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	HistorySize       int           `yaml:"history_size"`
	Compression       string        `yaml:"compression"`
	MaxPartitionBytes int64         `yaml:"max_partition_size"`
	EnableReplication bool          `yaml:"enable_replication"`
	EnableWAL         bool          `yaml:"enable_wal"`
}

// DefaultConfig returns a Config with the defaults used when no file is
// supplied.
func DefaultConfig() Config {
	return Config{
		BasePath:          "/var/lib/wal-cas",
		PartitionSize:     10_000,
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
		ArchiveCompleted:  true,
		ProcessInterval:   2 * time.Second,
		CheckInterval:     10 * time.Second,
		HistorySize:       5,
		Compression:       "zstd",
		MaxPartitionBytes: 256 << 20,
		EnableReplication: false,
		EnableWAL:         true,
	}
}

// Load reads a YAML config file at path, applying it on top of
// DefaultConfig so unspecified fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
