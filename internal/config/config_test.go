package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(backendEnv, "")
	t.Setenv(metricsPortEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Database.Backend != "sqlite" {
		t.Errorf("default backend = %q", cfg.Database.Backend)
	}
	if cfg.Pipeline.MaxKeywords != 50 {
		t.Errorf("default max keywords = %d", cfg.Pipeline.MaxKeywords)
	}
	if len(cfg.Sources.WikiLanguages) != 5 {
		t.Errorf("default wiki languages = %v", cfg.Sources.WikiLanguages)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
sources:
  trendsRegions: [US, BR]
  minInterval: 5s
pipeline:
  maxKeywords: 20
  runBudget: 3m
database:
  backend: postgres
  dsn: postgres://localhost/trends
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(backendEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Sources.TrendsRegions) != 2 || cfg.Sources.TrendsRegions[1] != "BR" {
		t.Errorf("regions = %v", cfg.Sources.TrendsRegions)
	}
	if cfg.Sources.MinInterval.Std() != 5*time.Second {
		t.Errorf("min interval = %v", cfg.Sources.MinInterval.Std())
	}
	if cfg.Pipeline.RunBudget.Std() != 3*time.Minute {
		t.Errorf("run budget = %v", cfg.Pipeline.RunBudget.Std())
	}
	if cfg.Database.Backend != "postgres" {
		t.Errorf("backend = %q", cfg.Database.Backend)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database:
  backend: sqlite
  dsn: local.db
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://prod/trends")
	t.Setenv(backendEnv, "postgres")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Backend != "postgres" || cfg.Database.DSN != "postgres://prod/trends" {
		t.Errorf("env overrides not applied: %+v", cfg.Database)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  backend: mongo\n  dsn: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(backendEnv, "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_RequiresDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  backend: postgres\n  dsn: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(backendEnv, "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing dsn")
	}
}
