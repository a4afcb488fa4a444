// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Account   AccountConfig   `toml:"account"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Sync      SyncConfig      `toml:"sync"`
	Explore   ExploreConfig   `toml:"explore"`
	Recommend RecommendConfig `toml:"recommend"`
	Log       LogConfig       `toml:"log"`
}

// AccountConfig names the judge account to sync.
type AccountConfig struct {
	Handle *string `toml:"handle"`
}

// CatalogConfig maps problem catalog client settings. Durations use Go
// syntax such as "10s" or "1h".
type CatalogConfig struct {
	BaseURL         *string `toml:"base-url"`
	Timeout         *string `toml:"timeout"`
	TagLanguage     *string `toml:"tag-language"`
	RequestInterval *string `toml:"request-interval"`
	CacheSize       *int    `toml:"cache-size"`
	CacheTTL        *string `toml:"cache-ttl"`
}

// SyncConfig maps sync pipeline settings.
type SyncConfig struct {
	ScrapeHistory *bool   `toml:"scrape-history"`
	ScrapePages   *int    `toml:"scrape-pages"`
	JudgeURL      *string `toml:"judge-url"`
}

// ExploreConfig maps realtime exploration defaults.
type ExploreConfig struct {
	Limit         *int  `toml:"limit"`
	ExcludeSolved *bool `toml:"exclude-solved"`
}

// RecommendConfig maps generation settings.
type RecommendConfig struct {
	// Seed fixes score jitter; 0 disables jitter.
	Seed *int64 `toml:"seed"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// ParseDuration parses an optional duration value. Nil yields nil.
func ParseDuration(key string, value *string) (*time.Duration, error) {
	if value == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &d, nil
}
