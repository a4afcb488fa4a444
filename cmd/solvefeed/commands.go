package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/expectation"
	"github.com/verte-zerg/solvefeed/internal/feedui"
	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/metrics"
	"github.com/verte-zerg/solvefeed/internal/model"
	"github.com/verte-zerg/solvefeed/internal/recommend"
	"github.com/verte-zerg/solvefeed/internal/stats"
	"github.com/verte-zerg/solvefeed/internal/store"
	"github.com/verte-zerg/solvefeed/internal/syncjob"
	"github.com/verte-zerg/solvefeed/internal/tier"
)

var (
	syncNoScrape    bool
	syncMetricsFile string

	feedCategory string
	feedPlain    bool
	feedOffline  bool

	exploreTags          string
	exploreLevelMin      int
	exploreLevelMax      int
	exploreCategory      string
	exploreLimit         int
	exploreIncludeSolved bool

	weakTop int

	todayPerCategory int

	historyLimit int
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch solves, score tags and generate a new feed",
		Args:  cobra.NoArgs,
		RunE:  runSyncCmd,
	}
	cmd.Flags().BoolVar(&syncNoScrape, "no-scrape", false, "skip the judge status page and date solves by problem ID")
	cmd.Flags().StringVar(&syncMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	return cmd
}

func runSyncCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if fileCfg.Sync.ScrapeHistory != nil && !cmd.Flags().Changed("no-scrape") {
		syncNoScrape = !*fileCfg.Sync.ScrapeHistory
	}

	client, pacer, err := newCatalog(fileCfg.Catalog, false)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	var dates syncjob.DateSource
	if !syncNoScrape {
		dates = newScraper(fileCfg.Sync)
	}
	runner := syncjob.NewRunner(syncjob.Config{
		Source:       client,
		Store:        st,
		Generator:    newGenerator(client, pacer, fileCfg.Recommend),
		Dates:        dates,
		Expectations: expectation.Select(expectation.NewCatalog(client, pacer), expectation.Static{}),
		Pacer:        pacer,
		OnProgress: func(job model.SyncJob) {
			logErrf("[%3d%%] %s\n", job.Progress, job.Message)
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	job, runErr := runner.Run(ctx, rootHandle)

	if syncMetricsFile != "" {
		if err := metrics.WriteTextfile(syncMetricsFile); err != nil {
			logErrf("%v\n", err)
		}
	}
	if runErr != nil {
		if errors.Is(runErr, catalog.ErrNotFound) {
			return fmt.Errorf("unknown handle %q", rootHandle)
		}
		if errors.Is(runErr, store.ErrSyncInProgress) {
			return fmt.Errorf("a sync for %s is already running", rootHandle)
		}
		return fmt.Errorf("sync failed: %w", runErr)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), job.Message); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the latest recommendation feed",
		Args:  cobra.NoArgs,
		RunE:  runFeedCmd,
	}
	cmd.Flags().StringVar(&feedCategory, "category", "", "only show one category (weakness, challenge, review, popular, foundation)")
	cmd.Flags().BoolVar(&feedPlain, "plain", false, "print a table instead of starting the TUI")
	cmd.Flags().BoolVar(&feedOffline, "offline", false, "never top up a short feed from the catalog")
	return cmd
}

func runFeedCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	category, err := parseCategoryFlag("category", feedCategory)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	report, err := stats.BuildReport(ctx, st, rootHandle, stats.ReportConfig{TrendTags: defaultWeakTop})
	if err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}
	if !report.HasSnapshot {
		logErrln("No feed yet. Run `solvefeed sync` first.")
	}

	if !feedOffline && report.HasSnapshot && len(report.Snapshot.Items) < recommend.MinItems {
		client, pacer, err := newCatalog(fileCfg.Catalog, false)
		if err != nil {
			return err
		}
		gen := newGenerator(client, pacer, fileCfg.Recommend)
		if err := topUpFeed(ctx, st, client, pacer, gen, &report); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Ctx(ctx).Warn().Err(err).Msg("feed top-up failed; showing stored feed")
		}
	}

	if feedPlain {
		w := cmd.OutOrStdout()
		if report.HasSnapshot {
			if err := stats.RenderFeedSummary(w, report.Snapshot); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		items := recommend.Filter{Category: category}.Apply(report.Snapshot.Items)
		title := fmt.Sprintf("Feed for %s", rootHandle)
		if err := stats.RenderFeed(w, title, items, report.Titles, stats.TerminalWidth()); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	program := tea.NewProgram(feedui.NewModel(report, category), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run feed TUI: %w", err)
	}
	return nil
}

// topUpFeed fills a short stored feed with popular problems from the live
// catalog. The result is shown but not saved.
func topUpFeed(ctx context.Context, st *store.Store, c catalog.Catalog, pacer catalog.Pacer, gen *recommend.Generator, report *stats.Report) error {
	snap := &report.Snapshot
	exclude, err := st.ListSolvedIDs(ctx, report.Handle)
	if err != nil {
		return err
	}
	for _, item := range snap.Items {
		exclude = append(exclude, item.ProblemID)
	}
	extra, err := gen.Backfill(ctx, snap.Criteria.UserAvgLevel, exclude, recommend.MinItems-len(snap.Items))
	if err != nil {
		return err
	}
	if len(extra) == 0 {
		return nil
	}
	ids := make([]int, len(extra))
	for i, item := range extra {
		ids[i] = item.ProblemID
	}
	problems, err := catalog.FetchAll(ctx, c, ids, pacer)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to fetch titles for top-up items")
	} else {
		if err := st.UpsertProblems(ctx, problems); err != nil {
			return err
		}
		if report.Titles == nil {
			report.Titles = make(map[int]string, len(problems))
		}
		for _, p := range problems {
			report.Titles[p.ProblemID] = p.Title
		}
	}
	snap.Items = append(snap.Items, extra...)
	snap.Stats = recommend.Summarize(snap.Items)
	logErrf("Topped up the feed with %d popular problems.\n", len(extra))
	return nil
}

func newExploreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Search the live catalog for problems matching filters",
		Args:  cobra.NoArgs,
		RunE:  runExploreCmd,
	}
	cmd.Flags().StringVar(&exploreTags, "tags", "", "comma-separated tag keys (default: weakest tags)")
	cmd.Flags().IntVar(&exploreLevelMin, "level-min", 0, "minimum level 1-30 (default: derived from tier)")
	cmd.Flags().IntVar(&exploreLevelMax, "level-max", 0, "maximum level 1-30 (default: derived from tier)")
	cmd.Flags().StringVar(&exploreCategory, "category", "", "label every result with this category")
	cmd.Flags().IntVar(&exploreLimit, "limit", recommend.DefaultLimit, "maximum results")
	cmd.Flags().BoolVar(&exploreIncludeSolved, "include-solved", false, "keep problems already solved")
	return cmd
}

func runExploreCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyIntConfig(cmd, "limit", &exploreLimit, fileCfg.Explore.Limit)
	if fileCfg.Explore.ExcludeSolved != nil && !cmd.Flags().Changed("include-solved") {
		exploreIncludeSolved = !*fileCfg.Explore.ExcludeSolved
	}
	category, err := parseCategoryFlag("category", exploreCategory)
	if err != nil {
		return err
	}
	if err := validateLevels(exploreLevelMin, exploreLevelMax); err != nil {
		return err
	}

	client, pacer, err := newCatalog(fileCfg.Catalog, true)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	profile, err := loadProfile(ctx, st, client, rootHandle)
	if err != nil {
		return err
	}
	solved, err := st.ListSolvedIDs(ctx, rootHandle)
	if err != nil {
		return fmt.Errorf("failed to load solves: %w", err)
	}
	scores, _, err := st.LatestTagStats(ctx, rootHandle)
	if err != nil {
		return fmt.Errorf("failed to load tag stats: %w", err)
	}

	items, err := recommend.NewExplorer(client).Explore(ctx,
		recommend.ExploreInput{Tier: profile.Tier, SolvedIDs: solved, Weakness: scores},
		recommend.Query{
			Category:      category,
			LevelMin:      exploreLevelMin,
			LevelMax:      exploreLevelMax,
			Tags:          parseTags(exploreTags),
			ExcludeSolved: !exploreIncludeSolved,
			Limit:         recommend.ClampLimit(exploreLimit),
		})
	if err != nil {
		return fmt.Errorf("explore failed: %w", err)
	}

	titles, err := resolveTitles(ctx, st, client, pacer, items)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("Explore for %s (%s)", rootHandle, tier.Name(profile.Tier))
	if err := stats.RenderFeed(cmd.OutOrStdout(), title, items, titles, stats.TerminalWidth()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// loadProfile prefers the profile stored by the last sync and falls back to
// a live lookup, which is then stored.
func loadProfile(ctx context.Context, st *store.Store, src catalog.Source, handle string) (model.Profile, error) {
	profile, err := st.Profile(ctx, handle)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrNoProfile) {
		return model.Profile{}, fmt.Errorf("failed to load profile: %w", err)
	}
	profile, err = src.UserProfile(ctx, handle)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return model.Profile{}, fmt.Errorf("unknown handle %q", handle)
		}
		return model.Profile{}, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if err := st.SaveProfile(ctx, profile); err != nil {
		return model.Profile{}, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, nil
}

// resolveTitles returns titles for items, reading the store first and
// fetching the rest from the catalog. Fetched problems are stored.
func resolveTitles(ctx context.Context, st *store.Store, c catalog.Catalog, pacer catalog.Pacer, items []model.RecommendationItem) (map[int]string, error) {
	ids := make([]int, len(items))
	for i, item := range items {
		ids[i] = item.ProblemID
	}
	problems, err := st.Problems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load problems: %w", err)
	}
	titles := make(map[int]string, len(ids))
	var missing []int
	for _, id := range ids {
		if p, ok := problems[id]; ok {
			titles[id] = p.Title
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return titles, nil
	}

	fetched, err := catalog.FetchAll(ctx, c, missing, pacer)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("missing", len(missing)).Msg("failed to fetch titles for explore items")
		return titles, nil
	}
	if err := st.UpsertProblems(ctx, fetched); err != nil {
		return nil, fmt.Errorf("failed to save problems: %w", err)
	}
	for _, p := range fetched {
		titles[p.ProblemID] = p.Title
	}
	return titles, nil
}

func newWeakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weak",
		Short: "Show the weakest tags from the last sync",
		Args:  cobra.NoArgs,
		RunE:  runWeakCmd,
	}
	cmd.Flags().IntVar(&weakTop, "top", defaultWeakTop, "number of tags to show")
	return cmd
}

func runWeakCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	if weakTop < 0 {
		return fmt.Errorf("--top must be >= 0")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	report, err := stats.BuildReport(cmd.Context(), st, rootHandle, stats.ReportConfig{TrendTags: weakTop})
	if err != nil {
		return fmt.Errorf("failed to load tag stats: %w", err)
	}
	opts := stats.WeakTableOptions{Top: weakTop, TrendWindow: defaultTrendWindow, Width: stats.TerminalWidth()}
	if err := stats.RenderWeakTable(cmd.OutOrStdout(), report.Scores, report.Trends, opts); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newTodayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Pick a few problems per category from the latest feed",
		Args:  cobra.NoArgs,
		RunE:  runTodayCmd,
	}
	cmd.Flags().IntVar(&todayPerCategory, "per-category", defaultPerCategory, "problems per category")
	return cmd
}

func runTodayCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	if todayPerCategory <= 0 {
		return fmt.Errorf("--per-category must be > 0")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	report, err := stats.BuildReport(cmd.Context(), st, rootHandle, stats.ReportConfig{TrendTags: 1})
	if err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}
	if !report.HasSnapshot {
		logErrln("No feed yet. Run `solvefeed sync` first.")
	}
	picks := recommend.Daily(report.Snapshot.Items, todayPerCategory)
	if err := stats.RenderFeed(cmd.OutOrStdout(), "Today", picks, report.Titles, stats.TerminalWidth()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored feeds and the last sync",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "number of feeds to list")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	job, err := st.LatestSyncJob(ctx, rootHandle)
	switch {
	case err == nil:
		if _, err := fmt.Fprintln(w, formatSyncJob(job)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	case errors.Is(err, store.ErrNoSyncJob):
	default:
		return fmt.Errorf("failed to load sync job: %w", err)
	}

	summaries, err := st.ListSnapshots(ctx, rootHandle, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list feeds: %w", err)
	}
	if err := stats.RenderHistory(w, summaries); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func formatSyncJob(job model.SyncJob) string {
	line := fmt.Sprintf("Last sync: %s %d%% (%s)", job.Status, job.Progress, job.CreatedAt.Local().Format("2006-01-02 15:04"))
	if job.Message != "" {
		line += ": " + job.Message
	}
	return line
}

func parseCategoryFlag(name, value string) (model.Category, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	category, ok := model.ParseCategory(value)
	if !ok {
		names := make([]string, len(model.Categories))
		for i, c := range model.Categories {
			names[i] = string(c)
		}
		return "", fmt.Errorf("invalid --%s %q (use %s)", name, value, strings.Join(names, ", "))
	}
	return category, nil
}

func parseTags(raw string) []string {
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

func validateLevels(lo, hi int) error {
	if lo < 0 || lo > 30 {
		return fmt.Errorf("--level-min must be between 1 and 30")
	}
	if hi < 0 || hi > 30 {
		return fmt.Errorf("--level-max must be between 1 and 30")
	}
	if lo > 0 && hi > 0 && lo > hi {
		return fmt.Errorf("--level-min must be <= --level-max")
	}
	return nil
}
