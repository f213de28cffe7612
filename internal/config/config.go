// Package config loads the runtime's own bootstrap configuration: which
// PropertySources to wire into the Variable Resolver chain, the admin REST
// listen address, and logging. This is distinct from the `pipelines` and
// `retry` properties (spec.md §6), which are decoded by pkg/manager and
// pkg/retry respectively.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig controls internal/logging.NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FileSourceConfig enables the JSON-file PropertySource.
type FileSourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RedisSourceConfig enables the Redis PropertySource.
type RedisSourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// SQLSourceConfig enables the SQL PropertySource.
type SQLSourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
}

// SourcesConfig lists the PropertySources to chain into the Resolver, in
// order (earlier sources win ties per spec.md's first-success-wins rule).
type SourcesConfig struct {
	CLI   bool              `yaml:"cli"`
	File  FileSourceConfig  `yaml:"file"`
	Redis RedisSourceConfig `yaml:"redis"`
	SQL   SQLSourceConfig   `yaml:"sql"`
}

// AdminServerConfig controls the peripheral admin REST surface
// (cmd/pipeline-runtimed).
type AdminServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RuntimeConfig is the top-level bootstrap configuration.
type RuntimeConfig struct {
	Logging LoggingConfig     `yaml:"logging"`
	Sources SourcesConfig     `yaml:"sources"`
	Admin   AdminServerConfig `yaml:"admin"`

	// PipelinesFile, if set, seeds the Resolver's `pipelines` property from a
	// JSON file at startup, through an in-memory source placed last in the
	// chain so the configured PropertySources take precedence. RetryFile, if
	// set, is the JSON file the retry policy is decoded from at startup; the
	// `retry` property is not looked up through the Resolver.
	// Each may be overridden by the PIPELINE_CONFIG_PIPELINES_FILE /
	// PIPELINE_CONFIG_RETRY_FILE environment variables.
	PipelinesFile string `yaml:"pipelines_file"`
	RetryFile     string `yaml:"retry_file"`
}

func defaults() RuntimeConfig {
	return RuntimeConfig{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Sources: SourcesConfig{CLI: true},
		Admin:   AdminServerConfig{Addr: ":8090", ShutdownTimeout: 10 * time.Second},
	}
}

// Load reads and parses a RuntimeConfig from path, applying defaults for
// unset fields and environment-variable overrides for the pipelines/retry
// seed files.
func Load(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("PIPELINE_CONFIG_PIPELINES_FILE"); v != "" {
		cfg.PipelinesFile = v
	}
	if v := os.Getenv("PIPELINE_CONFIG_RETRY_FILE"); v != "" {
		cfg.RetryFile = v
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *RuntimeConfig) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q", cfg.Logging.Format)
	}
	if cfg.Sources.File.Enabled && cfg.Sources.File.Path == "" {
		return fmt.Errorf("sources.file.enabled requires sources.file.path")
	}
	if cfg.Sources.Redis.Enabled && cfg.Sources.Redis.Addr == "" {
		return fmt.Errorf("sources.redis.enabled requires sources.redis.addr")
	}
	if cfg.Sources.SQL.Enabled && cfg.Sources.SQL.DSN == "" {
		return fmt.Errorf("sources.sql.enabled requires sources.sql.dsn")
	}
	return nil
}

// ReadSeedFile reads a JSON seed file for the `pipelines` or `retry`
// property (empty path is not an error: the property is simply absent).
func ReadSeedFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %q: %w", path, err)
	}
	return data, nil
}
