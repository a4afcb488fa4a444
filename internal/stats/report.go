package stats

import (
	"context"
	"errors"
	"time"

	"github.com/verte-zerg/solvefeed/internal/model"
	"github.com/verte-zerg/solvefeed/internal/store"
)

// Report contains precomputed data for feed and weak-tag rendering.
type Report struct {
	Handle      string
	HasSnapshot bool
	Snapshot    model.Snapshot
	Titles      map[int]string
	Scores      []model.WeaknessScore
	ScoredAt    time.Time
	Trends      map[string][]float64
}

// ReportConfig limits how much history BuildReport loads.
type ReportConfig struct {
	// TrendPoints is the number of past syncs per tag trend.
	TrendPoints int
	// TrendTags limits trends to the weakest N tags. Zero loads all.
	TrendTags int
}

// BuildReport loads the latest snapshot, the latest weakness scores and the
// weakness history of the weakest tags. A missing snapshot is not an error.
func BuildReport(ctx context.Context, st *store.Store, handle string, cfg ReportConfig) (Report, error) {
	report := Report{Handle: handle, Trends: map[string][]float64{}}

	snap, err := st.LatestSnapshot(ctx, handle)
	switch {
	case err == nil:
		report.HasSnapshot = true
		report.Snapshot = snap
	case errors.Is(err, store.ErrNoSnapshot):
	default:
		return Report{}, err
	}

	if report.HasSnapshot {
		ids := make([]int, len(snap.Items))
		for i, item := range snap.Items {
			ids[i] = item.ProblemID
		}
		problems, err := st.Problems(ctx, ids)
		if err != nil {
			return Report{}, err
		}
		report.Titles = make(map[int]string, len(problems))
		for id, p := range problems {
			report.Titles[id] = p.Title
		}
	}

	report.Scores, report.ScoredAt, err = st.LatestTagStats(ctx, handle)
	if err != nil {
		return Report{}, err
	}

	points := cfg.TrendPoints
	if points <= 0 {
		points = 20
	}
	tags := report.Scores
	if cfg.TrendTags > 0 && len(tags) > cfg.TrendTags {
		tags = tags[:cfg.TrendTags]
	}
	for _, s := range tags {
		history, err := st.TagScoreHistory(ctx, handle, s.Tag, points)
		if err != nil {
			return Report{}, err
		}
		values := make([]float64, len(history))
		for i, pt := range history {
			values[i] = pt.Score
		}
		report.Trends[s.Tag] = values
	}
	return report, nil
}
