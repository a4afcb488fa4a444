package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if cfg.Account.Handle != nil {
		t.Fatalf("expected empty config")
	}
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for an empty path")
	}
}

func TestLoadConfigSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[account]
handle = "alice"

[catalog]
timeout = "5s"
tag-language = "en"
cache-size = 64

[sync]
scrape-history = false
scrape-pages = 3

[explore]
limit = 80

[recommend]
seed = 7

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg.Account.Handle != "alice" || *cfg.Catalog.TagLanguage != "en" || *cfg.Catalog.CacheSize != 64 {
		t.Fatalf("unexpected catalog config %+v", cfg.Catalog)
	}
	if *cfg.Sync.ScrapeHistory || *cfg.Sync.ScrapePages != 3 || *cfg.Explore.Limit != 80 || *cfg.Recommend.Seed != 7 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Explore.ExcludeSolved != nil || cfg.Log.Format != nil {
		t.Fatalf("expected unset keys to stay nil")
	}
	timeout, err := ParseDuration("catalog.timeout", cfg.Catalog.Timeout)
	if err != nil || *timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v %v", timeout, err)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[account]\nhandel = \"typo\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "account.handel") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDuration("x", nil); d != nil || err != nil {
		t.Fatalf("expected nil for unset duration")
	}
	bad := "soon"
	if _, err := ParseDuration("catalog.cache-ttl", &bad); err == nil || !strings.Contains(err.Error(), "catalog.cache-ttl") {
		t.Fatalf("expected keyed parse error, got %v", err)
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "solvefeed", "config.toml") {
		t.Fatalf("unexpected config path %s", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "solvefeed", "solvefeed.db") {
		t.Fatalf("unexpected db path %s", got)
	}
}
