// Package config loads mindia's configuration from environment variables
// (MINDIA_ prefix), a YAML file, and built-in defaults, in that priority
// order, following the teacher's layered viper setup. Command-line flags
// are not bound; the only flag input is the config file path passed to
// Load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/jeremybastin1207/mindia/internal/bytesize"
	"github.com/jeremybastin1207/mindia/internal/dbstore"
)

// Config is the root configuration object, decoded from YAML/env
// and validated with go-playground/validator before use.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store" yaml:"object_store"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter" yaml:"rate_limiter"`
	CapacityGate CapacityGateConfig `mapstructure:"capacity_gate" yaml:"capacity_gate"`
	Upload      UploadConfig      `mapstructure:"upload" yaml:"upload"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup" yaml:"cleanup"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry" yaml:"telemetry"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
}

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Type     string                  `mapstructure:"type" yaml:"type" validate:"oneof=sqlite postgres"`
	SQLite   dbstore.SQLiteConfig    `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres dbstore.PostgresConfig  `mapstructure:"postgres" yaml:"postgres"`
}

// ObjectStoreConfig selects and configures the blob store backend.
type ObjectStoreConfig struct {
	Type      string `mapstructure:"type" yaml:"type" validate:"oneof=s3 local"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
	LocalRootDir   string `mapstructure:"local_root_dir" yaml:"local_root_dir"`
	LocalBaseURL   string `mapstructure:"local_base_url" yaml:"local_base_url"`
}

// SchedulerConfig configures the task scheduler's worker pool.
type SchedulerConfig struct {
	WorkerCount     int           `mapstructure:"worker_count" yaml:"worker_count" validate:"min=1"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"min=0"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff" yaml:"max_retry_backoff"`
	ClaimBatchSize  int           `mapstructure:"claim_batch_size" yaml:"claim_batch_size" validate:"min=1"`
	StaleTaskAfter  time.Duration `mapstructure:"stale_task_after" yaml:"stale_task_after" validate:"min=0"`
}

// RateLimiterConfig configures the sharded per-task-kind token bucket.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	Shards            int     `mapstructure:"shards" yaml:"shards" validate:"min=1"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" yaml:"burst" validate:"min=1"`
}

// CapacityGateConfig configures the admission-control predicate.
type CapacityGateConfig struct {
	Enabled              bool          `mapstructure:"enabled" yaml:"enabled"`
	SampleInterval       time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	DiskPath             string        `mapstructure:"disk_path" yaml:"disk_path"`
	MaxDiskUsedPercent   float64       `mapstructure:"max_disk_used_percent" yaml:"max_disk_used_percent"`
	DiskBlocks           bool          `mapstructure:"disk_blocks" yaml:"disk_blocks"`
	MaxMemoryAllocBytes  uint64        `mapstructure:"max_memory_alloc_bytes" yaml:"max_memory_alloc_bytes"`
	MemoryBlocks         bool          `mapstructure:"memory_blocks" yaml:"memory_blocks"`
	MaxLoadAverage1m     float64       `mapstructure:"max_load_average_1m" yaml:"max_load_average_1m"`
	LoadBlocks           bool          `mapstructure:"load_blocks" yaml:"load_blocks"`
}

// UploadConfig configures the chunked upload coordinator.
type UploadConfig struct {
	MaxChunks            int             `mapstructure:"max_chunks" yaml:"max_chunks" validate:"min=1,max=10000"`
	ChunkPresignTTL      time.Duration   `mapstructure:"chunk_presign_ttl" yaml:"chunk_presign_ttl"`
	DefaultEphemeralTTL  time.Duration   `mapstructure:"default_ephemeral_ttl" yaml:"default_ephemeral_ttl"`
	MaxDeclaredSize      bytesize.ByteSize `mapstructure:"max_declared_size" yaml:"max_declared_size"`
}

// CleanupConfig configures the cleanup/reconciliation sweeps.
type CleanupConfig struct {
	Interval             time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=0"`
	FinishedTaskRetention time.Duration `mapstructure:"finished_task_retention" yaml:"finished_task_retention"`
	OrphanReconcileBatch  int           `mapstructure:"orphan_reconcile_batch" yaml:"orphan_reconcile_batch" validate:"min=1"`
}

// LoggingConfig configures internal/logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// TelemetryConfig configures tracing and profiling.
type TelemetryConfig struct {
	OTLPEndpoint    string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	PyroscopeServer string `mapstructure:"pyroscope_server" yaml:"pyroscope_server"`
	MetricsAddr     string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// HTTPConfig configures the Task/Upload HTTP API surface.
type HTTPConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxFilterCount int           `mapstructure:"max_filter_count" yaml:"max_filter_count" validate:"min=1,max=10"`
}

// Defaults returns a Config pre-populated with mindia's built-in defaults,
// matching spec.md's named constants (MAX_CHUNKS, MAX_METADATA_FILTERS,
// the 15-minute chunk presign TTL, the 24-hour ephemeral expiry, the
// 300-second max retry backoff).
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{Type: "sqlite"},
		ObjectStore: ObjectStoreConfig{
			Type: "local",
		},
		Scheduler: SchedulerConfig{
			WorkerCount:     4,
			PollInterval:    2 * time.Second,
			MaxRetryBackoff: 300 * time.Second,
			ClaimBatchSize:  1,
			StaleTaskAfter:  10 * time.Minute,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			Shards:            8,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		CapacityGate: CapacityGateConfig{
			Enabled:            true,
			SampleInterval:     5 * time.Second,
			DiskPath:           "/",
			MaxDiskUsedPercent: 90,
			DiskBlocks:         true,
		},
		Upload: UploadConfig{
			MaxChunks:           10_000,
			ChunkPresignTTL:     15 * time.Minute,
			DefaultEphemeralTTL: 24 * time.Hour,
			MaxDeclaredSize:     5 * bytesize.GiB,
		},
		Cleanup: CleanupConfig{
			Interval:              5 * time.Minute,
			FinishedTaskRetention: 72 * time.Hour,
			OrphanReconcileBatch:  500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9090",
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxFilterCount: 10,
		},
	}
}

// getConfigDir returns the directory mindia looks for a config file in,
// honoring XDG_CONFIG_HOME the way the teacher's config loader does.
func getConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mindia")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mindia")
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.StringToTimeDurationHookFunc()
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFuncs(
		durationDecodeHook(),
		bytesize.StringToByteSizeHookFunc(),
	)
}

func setupViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MINDIA")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")
	}

	return v
}

// Load reads configuration from configFile (or the default search path if
// empty), layering env > file > defaults, decodes it into a
// Config seeded with Defaults(), and validates the result.
func Load(configFile string) (*Config, error) {
	v := setupViper(configFile)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Defaults()
	decoderOpts := func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = configDecodeHooks()
		dc.ErrorUnused = false
	}
	if err := v.Unmarshal(cfg, decoderOpts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad calls Load and panics on error. Used from cmd/mindia's serve
// and migrate commands, which have no sensible way to continue past a bad
// config.
func MustLoad(configFile string) *Config {
	cfg, err := Load(configFile)
	if err != nil {
		panic(err)
	}
	return cfg
}

// SaveConfig writes cfg to path as YAML, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	m := map[string]interface{}{}
	if err := mapstructure.Decode(cfg, &m); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	for k, val := range m {
		v.Set(k, val)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	return v.WriteConfigAs(path)
}
