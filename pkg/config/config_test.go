package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Ingestion.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.Ingestion.Workers)
	}
	if len(cfg.Ingestion.Stopwords) != len(DefaultStopwords) {
		t.Errorf("expected default stopwords, got %v", cfg.Ingestion.Stopwords)
	}
	if cfg.GeoCache.Backend != "memory" {
		t.Errorf("expected memory geocache, got %q", cfg.GeoCache.Backend)
	}
	if cfg.Geocoder.MaxAttempts != 1 {
		t.Errorf("expected a single geocoder attempt by default, got %d", cfg.Geocoder.MaxAttempts)
	}
	if cfg.Ingestion.BatchTimeout() != 90*time.Second {
		t.Errorf("unexpected batch timeout %v", cfg.Ingestion.BatchTimeout())
	}
}

func TestLoadFromOverridesStopwords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "ingestion:\n  workers: 4\n  stopwords: [\"the\", \"health\"]\ngeocache:\n  backend: redis\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Ingestion.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Ingestion.Workers)
	}
	if len(cfg.Ingestion.Stopwords) != 2 || cfg.Ingestion.Stopwords[1] != "health" {
		t.Errorf("unexpected stopwords %v", cfg.Ingestion.Stopwords)
	}
	if cfg.GeoCache.Backend != "redis" {
		t.Errorf("expected redis backend, got %q", cfg.GeoCache.Backend)
	}
}

func TestLoadFromMissingExplicitFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
