// Package config loads the run configuration from YAML with environment
// overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "TRENDHOUND_CONFIG"
	databaseDSNEnv = "DATABASE_DSN"
	backendEnv     = "TRENDHOUND_BACKEND"
	metricsPortEnv = "TRENDHOUND_METRICS_PORT"
)

// Duration wraps time.Duration so YAML values like "5s" decode cleanly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds high-level settings required across the application.
type Config struct {
	Sources   SourcesConfig   `yaml:"sources"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SourcesConfig selects which upstreams contribute keywords.
type SourcesConfig struct {
	// TrendsRegions are ISO region codes, one trends source per region.
	TrendsRegions []string `yaml:"trendsRegions"`
	// WikiLanguages are tried in order when resolving article titles, and
	// each also gets a top-articles source.
	WikiLanguages []string `yaml:"wikiLanguages"`
	// MinInterval spaces successive requests to the same upstream.
	MinInterval Duration `yaml:"minInterval"`
	// Fingerprint selects the TLS ClientHello profile: chrome, firefox
	// or go (default).
	Fingerprint string `yaml:"fingerprint"`
}

// PipelineConfig bounds one collection run.
type PipelineConfig struct {
	// MaxKeywords caps the keyword set per run after deduplication.
	MaxKeywords int `yaml:"maxKeywords"`
	// RunBudget is the wall-clock deadline for the whole run.
	RunBudget Duration `yaml:"runBudget"`
	// EnrichWorkers bounds concurrent pageview lookups.
	EnrichWorkers int `yaml:"enrichWorkers"`
}

// EstimatorConfig tunes synthesized metrics.
type EstimatorConfig struct {
	// VolumeFloor is the minimum search volume ever reported.
	VolumeFloor int `yaml:"volumeFloor"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	// Backend is one of postgres, sqlite, json.
	Backend string `yaml:"backend"`
	// DSN is the connection string (postgres/sqlite) or file path (json).
	DSN string `yaml:"dsn"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides, then validates the result.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(backendEnv); v != "" {
		c.Database.Backend = v
	}
	if v := os.Getenv(metricsPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Metrics.Port = port
			c.Metrics.Enabled = true
		}
	}
}

func (c *Config) validate() error {
	switch c.Database.Backend {
	case "postgres", "sqlite", "json":
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	if c.Database.DSN == "" {
		// Refuse to run half-configured rather than silently dropping data.
		return fmt.Errorf("database backend %q requires a dsn", c.Database.Backend)
	}
	if len(c.Sources.TrendsRegions) == 0 && len(c.Sources.WikiLanguages) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	if c.Pipeline.MaxKeywords <= 0 {
		return fmt.Errorf("pipeline.maxKeywords must be positive")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Sources: SourcesConfig{
			TrendsRegions: []string{"US"},
			WikiLanguages: []string{"en", "es", "pt", "fr", "de"},
			MinInterval:   Duration(2 * time.Second),
			Fingerprint:   "go",
		},
		Pipeline: PipelineConfig{
			MaxKeywords:   50,
			RunBudget:     Duration(10 * time.Minute),
			EnrichWorkers: 3,
		},
		Estimator: EstimatorConfig{
			VolumeFloor: 1000,
		},
		Database: DatabaseConfig{
			Backend: "sqlite",
			DSN:     "trendhound.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}
