// Package syncjob runs the sync pipeline: profile, solved problems, solve
// dates, tag scores and a fresh recommendation snapshot.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/expectation"
	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/metrics"
	"github.com/verte-zerg/solvefeed/internal/model"
	"github.com/verte-zerg/solvefeed/internal/recommend"
	"github.com/verte-zerg/solvefeed/internal/solvehistory"
	"github.com/verte-zerg/solvefeed/internal/stats"
	"github.com/verte-zerg/solvefeed/internal/store"
)

// DateSource looks up first-solve times for a handle.
type DateSource interface {
	SolveDates(ctx context.Context, handle string) (map[int]time.Time, error)
}

// Recommender generates a recommendation snapshot.
type Recommender interface {
	Generate(ctx context.Context, in recommend.Input) (model.Snapshot, error)
}

// Config wires a Runner. Dates and Expectations are optional.
type Config struct {
	Source       catalog.Source
	Store        *store.Store
	Generator    Recommender
	Dates        DateSource
	Expectations expectation.Source
	Pacer        catalog.Pacer
	Now          func() time.Time
	// OnProgress observes every job update.
	OnProgress func(model.SyncJob)
}

// Runner executes sync jobs. Runs for different handles may share a Runner.
type Runner struct {
	cfg Config
}

// NewRunner returns a Runner, filling optional fields with no-op defaults.
func NewRunner(cfg Config) *Runner {
	if cfg.Expectations == nil {
		cfg.Expectations = expectation.Static{}
	}
	if cfg.Pacer == nil {
		cfg.Pacer = catalog.NoPacer{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Generator == nil {
		cfg.Generator = recommend.NewGenerator(cfg.Source, recommend.WithPacer(cfg.Pacer))
	}
	return &Runner{cfg: cfg}
}

type run struct {
	*Runner
	job model.SyncJob
}

// Run syncs handle and returns the finished job. On failure the job is
// marked FAILED with the error message and the error is returned. A handle
// with an active job fails with store.ErrSyncInProgress.
func (r *Runner) Run(ctx context.Context, handle string) (model.SyncJob, error) {
	ctx = logging.WithRunID(ctx)
	job, err := r.cfg.Store.CreateSyncJob(ctx, handle, r.cfg.Now())
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("failed to create sync job: %w", err)
	}
	rn := &run{Runner: r, job: job}

	if err := rn.execute(ctx, handle); err != nil {
		ended := r.cfg.Now()
		rn.job.Status = model.SyncFailed
		rn.job.Message = err.Error()
		rn.job.EndedAt = &ended
		if uerr := rn.save(context.WithoutCancel(ctx)); uerr != nil {
			logging.Ctx(ctx).Error().Err(uerr).Int64("job", rn.job.ID).Msg("failed to mark sync job failed")
		}
		metrics.SyncRuns.WithLabelValues(string(model.SyncFailed)).Inc()
		logging.Ctx(ctx).Error().Err(err).Str("handle", handle).Msg("sync failed")
		return rn.job, err
	}
	metrics.SyncRuns.WithLabelValues(string(model.SyncSuccess)).Inc()
	return rn.job, nil
}

func (rn *run) save(ctx context.Context) error {
	if err := rn.cfg.Store.UpdateSyncJob(ctx, rn.job); err != nil {
		return err
	}
	if rn.cfg.OnProgress != nil {
		rn.cfg.OnProgress(rn.job)
	}
	return nil
}

func (rn *run) progress(ctx context.Context, pct int, format string, args ...any) error {
	rn.job.Progress = pct
	rn.job.Message = fmt.Sprintf(format, args...)
	logging.Ctx(ctx).Debug().Int("progress", pct).Msg(rn.job.Message)
	return rn.save(ctx)
}

func (rn *run) execute(ctx context.Context, handle string) error {
	cfg := rn.cfg
	started := cfg.Now()
	rn.job.Status = model.SyncRunning
	rn.job.StartedAt = &started
	if err := rn.progress(ctx, 0, "sync started"); err != nil {
		return err
	}

	if err := rn.progress(ctx, 5, "fetching profile"); err != nil {
		return err
	}
	profile, err := cfg.Source.UserProfile(ctx, handle)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("handle %q not found on solved.ac: %w", handle, err)
		}
		return fmt.Errorf("failed to fetch profile: %w", err)
	}
	if profile.FetchedAt.IsZero() {
		profile.FetchedAt = cfg.Now()
	}
	if err := cfg.Store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if err := rn.progress(ctx, 10, "profile updated"); err != nil {
		return err
	}

	if err := rn.progress(ctx, 15, "fetching solved problems"); err != nil {
		return err
	}
	ids, err := cfg.Source.SolvedProblemIDs(ctx, handle, cfg.Pacer)
	if err != nil {
		return fmt.Errorf("failed to fetch solved problems: %w", err)
	}
	if err := rn.progress(ctx, 30, "%d problems found", len(ids)); err != nil {
		return err
	}

	if err := rn.progress(ctx, 35, "fetching problem details"); err != nil {
		return err
	}
	problems, err := catalog.FetchAll(ctx, cfg.Source, ids, cfg.Pacer)
	if err != nil {
		return fmt.Errorf("failed to fetch problem details: %w", err)
	}
	if err := rn.progress(ctx, 60, "saving problems"); err != nil {
		return err
	}
	if err := cfg.Store.UpsertProblems(ctx, problems); err != nil {
		return fmt.Errorf("failed to save problems: %w", err)
	}

	if err := rn.progress(ctx, 65, "fetching solve dates"); err != nil {
		return err
	}
	now := cfg.Now()
	dates, synthetic := rn.solveDates(ctx, handle, ids, now)
	if err := rn.progress(ctx, 70, "updating solve history"); err != nil {
		return err
	}
	if err := cfg.Store.ReplaceSolves(ctx, handle, solvehistory.Records(ids, dates, now, synthetic)); err != nil {
		return fmt.Errorf("failed to save solves: %w", err)
	}

	if err := rn.progress(ctx, 75, "analyzing tags"); err != nil {
		return err
	}
	expectations, err := cfg.Expectations.Expectations(ctx)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("tag expectations unavailable, using built-in formula")
		expectations = nil
	}
	scores := stats.CalculateWeaknessScores(stats.AnalyzeTags(problems, dates, now), profile.Tier, expectations, now)
	if err := cfg.Store.SaveTagStats(ctx, handle, now, scores); err != nil {
		return fmt.Errorf("failed to save tag stats: %w", err)
	}

	if err := rn.progress(ctx, 85, "generating recommendations"); err != nil {
		return err
	}
	snap, err := cfg.Generator.Generate(ctx, recommend.Input{
		UserID:       handle,
		Tier:         profile.Tier,
		Solved:       problems,
		Weakness:     scores,
		Expectations: expectations,
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		logging.Ctx(ctx).Error().Err(err).Msg("recommendation generation failed, saving an empty snapshot")
		snap = emptySnapshot(handle, profile.Tier, problems, scores, cfg.Now())
	}

	if len(snap.Items) > 0 {
		if err := rn.progress(ctx, 87, "saving recommended problems"); err != nil {
			return err
		}
		recIDs := make([]int, 0, len(snap.Items))
		seen := map[int]bool{}
		for _, item := range snap.Items {
			if !seen[item.ProblemID] {
				seen[item.ProblemID] = true
				recIDs = append(recIDs, item.ProblemID)
			}
		}
		recProblems, err := catalog.FetchAll(ctx, cfg.Source, recIDs, cfg.Pacer)
		if err != nil {
			return fmt.Errorf("failed to fetch recommended problems: %w", err)
		}
		if err := cfg.Store.UpsertProblems(ctx, recProblems); err != nil {
			return fmt.Errorf("failed to save recommended problems: %w", err)
		}
	}
	if err := cfg.Store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if err := rn.progress(ctx, 90, "finishing"); err != nil {
		return err
	}
	ended := cfg.Now()
	rn.job.Status = model.SyncSuccess
	rn.job.EndedAt = &ended
	return rn.progress(ctx, 100, "sync complete: %d problems analyzed, %d recommendations (%s)",
		len(ids), len(snap.Items), categorySummary(snap.Stats))
}

// solveDates scrapes first-solve times and falls back to the problem-ID
// proxy when scraping is disabled, fails or finds nothing.
func (rn *run) solveDates(ctx context.Context, handle string, ids []int, now time.Time) (map[int]time.Time, bool) {
	if rn.cfg.Dates != nil {
		dates, err := rn.cfg.Dates.SolveDates(ctx, handle)
		switch {
		case err != nil:
			logging.Ctx(ctx).Warn().Err(err).Msg("solve date scrape failed, using problem order")
		case len(dates) > 0:
			return dates, false
		}
	}
	return solvehistory.SyntheticDates(ids, now), true
}

func emptySnapshot(handle string, tier int, problems []model.SolvedProblem, scores []model.WeaknessScore, now time.Time) model.Snapshot {
	total := 0
	for _, p := range problems {
		total += p.Level
	}
	weak := make([]string, 0, 5)
	for _, s := range scores[:min(5, len(scores))] {
		weak = append(weak, s.Tag)
	}
	return model.Snapshot{
		ID:          uuid.NewString(),
		UserID:      handle,
		GeneratedAt: now.UTC(),
		Criteria: model.Criteria{
			UserTier:      tier,
			UserAvgLevel:  int(math.Round(float64(total) / float64(max(len(problems), 1)))),
			LevelMin:      1,
			LevelMax:      30,
			WeakTags:      weak,
			ExcludeSolved: true,
		},
		Items: []model.RecommendationItem{},
		Stats: recommend.Summarize(nil),
	}
}

func categorySummary(s model.FeedStats) string {
	var parts []string
	for _, c := range model.Categories {
		if n := s.ByCategory[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", c, n))
		}
	}
	return strings.Join(parts, ", ")
}
