// Package main provides the CLI entrypoint for solvefeed.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/config"
	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/recommend"
	"github.com/verte-zerg/solvefeed/internal/solvehistory"
	"github.com/verte-zerg/solvefeed/internal/store"
)

const (
	defaultRequestInterval = 600 * time.Millisecond
	defaultCacheSize       = 256
	defaultCacheTTL        = 10 * time.Minute
	defaultWeakTop         = 15
	defaultTrendWindow     = 3
	defaultPerCategory     = 2
)

var (
	rootHandle    string
	rootLogLevel  string
	rootLogFormat string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "solvefeed",
		Short:         "Weakness-driven problem recommendations for solved.ac",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&rootHandle, "handle", "", "solved.ac handle")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newFeedCmd())
	rootCmd.AddCommand(newExploreCmd())
	rootCmd.AddCommand(newWeakCmd())
	rootCmd.AddCommand(newTodayCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadConfig reads the config file, applies the root flags over it and
// initializes logging. It fails when no handle is configured.
func loadConfig(cmd *cobra.Command) (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "handle", &rootHandle, fileCfg.Account.Handle)
	applyStringConfig(cmd, "log-level", &rootLogLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &rootLogFormat, fileCfg.Log.Format)
	logging.Init(logging.Config{Level: rootLogLevel, Format: rootLogFormat})

	rootHandle = strings.TrimSpace(rootHandle)
	if rootHandle == "" {
		return config.FileConfig{}, fmt.Errorf("no handle configured (use --handle or [account] handle in %s)", config.DefaultConfigPath())
	}
	return fileCfg, nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

// newCatalog builds the solved.ac client and the pacer used between bulk calls.
// Interactive clients give up on the first rate-limit response instead of
// backing off.
func newCatalog(cfg config.CatalogConfig, interactive bool) (*catalog.Client, *catalog.RatePacer, error) {
	timeout, err := config.ParseDuration("catalog.timeout", cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	interval, err := config.ParseDuration("catalog.request-interval", cfg.RequestInterval)
	if err != nil {
		return nil, nil, err
	}
	cacheTTL, err := config.ParseDuration("catalog.cache-ttl", cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}

	opts := catalog.Options{CacheSize: defaultCacheSize, CacheTTL: defaultCacheTTL}
	if interactive {
		opts.MaxRetries = -1
	}
	if cfg.BaseURL != nil {
		opts.BaseURL = *cfg.BaseURL
	}
	if cfg.TagLanguage != nil {
		opts.Language = *cfg.TagLanguage
	}
	if cfg.CacheSize != nil {
		opts.CacheSize = *cfg.CacheSize
	}
	if timeout != nil {
		opts.Timeout = *timeout
	}
	if cacheTTL != nil {
		opts.CacheTTL = *cacheTTL
	}
	spacing := defaultRequestInterval
	if interval != nil {
		spacing = *interval
	}
	return catalog.NewClient(opts), catalog.NewRatePacer(spacing), nil
}

func newGenerator(c catalog.Catalog, pacer catalog.Pacer, cfg config.RecommendConfig) *recommend.Generator {
	opts := []recommend.Option{recommend.WithPacer(pacer)}
	if cfg.Seed != nil && *cfg.Seed != 0 {
		opts = append(opts, recommend.WithJitter(recommend.NewJitter(*cfg.Seed)))
	}
	return recommend.NewGenerator(c, opts...)
}

func newScraper(cfg config.SyncConfig) *solvehistory.Scraper {
	opts := solvehistory.Options{}
	if cfg.JudgeURL != nil {
		opts.BaseURL = *cfg.JudgeURL
	}
	if cfg.ScrapePages != nil {
		opts.MaxPages = *cfg.ScrapePages
	}
	return solvehistory.NewScraper(opts)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# solvefeed configuration
# Uncomment a value to enable it. CLI flags override config values.

[account]
# handle = "your_handle"        # solved.ac handle

[catalog]
# base-url = %q
# timeout = "15s"               # Per-request timeout
# tag-language = "ko"           # Tag display language
# request-interval = %q       # Spacing between bulk catalog calls
# cache-size = %d              # Cached search pages, 0 disables the cache
# cache-ttl = %q

[sync]
# scrape-history = true         # Read first-solve dates from the judge status page
# scrape-pages = %d
# judge-url = %q

[explore]
# limit = %d
# exclude-solved = true

[recommend]
# seed = 0                      # Non-zero adds deterministic score jitter

[log]
# level = "warn"                # debug, info, warn, error
# format = "console"            # console, json
`,
		catalog.DefaultBaseURL,
		defaultRequestInterval.String(),
		defaultCacheSize,
		defaultCacheTTL.String(),
		solvehistory.DefaultMaxPages,
		solvehistory.DefaultBaseURL,
		recommend.DefaultLimit,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
