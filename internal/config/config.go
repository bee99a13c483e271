// Package config loads stockcore settings from an optional YAML file with
// STOCKCORE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported driver names.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	BlobFilesystem = "fs"
	BlobS3         = "s3"
	BlobMemory     = "memory"
)

// Config holds process configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Blob    BlobConfig    `yaml:"blob" json:"blob"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// StorageConfig selects the catalog persistence backend.
type StorageConfig struct {
	Driver      string `yaml:"driver" json:"driver"`
	SQLitePath  string `yaml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty" json:"postgres_dsn,omitempty"`
}

// BlobConfig selects where catalog exports are written.
type BlobConfig struct {
	Driver string   `yaml:"driver" json:"driver"`
	FSRoot string   `yaml:"fs_root" json:"fs_root"`
	S3     S3Config `yaml:"s3" json:"s3"`
}

// S3Config addresses an S3 or MinIO bucket. Credentials come from the
// default AWS chain.
type S3Config struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style" json:"path_style"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level string `yaml:"level" json:"level"` // debug|info|warn|error
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: StorageSQLite, SQLitePath: "stockcore.db"},
		Blob:    BlobConfig{Driver: BlobFilesystem, FSRoot: "blobdata", S3: S3Config{Region: "us-east-1"}},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	ApplyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the STOCKCORE_* variables reported by lookup:
//
//	STOCKCORE_STORAGE_DRIVER: memory|sqlite|postgres
//	STOCKCORE_SQLITE_PATH, STOCKCORE_POSTGRES_DSN
//	STOCKCORE_BLOB_DRIVER: fs|s3|memory
//	STOCKCORE_BLOB_FS_ROOT
//	STOCKCORE_BLOB_S3_BUCKET, STOCKCORE_BLOB_S3_REGION,
//	STOCKCORE_BLOB_S3_ENDPOINT, STOCKCORE_BLOB_S3_PATH_STYLE
//	STOCKCORE_LOG_LEVEL
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("STOCKCORE_STORAGE_DRIVER", &cfg.Storage.Driver)
	set("STOCKCORE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	set("STOCKCORE_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	set("STOCKCORE_BLOB_DRIVER", &cfg.Blob.Driver)
	set("STOCKCORE_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	set("STOCKCORE_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	set("STOCKCORE_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	set("STOCKCORE_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	if v, ok := lookup("STOCKCORE_BLOB_S3_PATH_STYLE"); ok && v != "" {
		cfg.Blob.S3.PathStyle = strings.EqualFold(v, "true")
	}
	set("STOCKCORE_LOG_LEVEL", &cfg.Log.Level)
}

// Validate checks driver names and driver-specific requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobFilesystem, BlobMemory:
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel maps the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}
