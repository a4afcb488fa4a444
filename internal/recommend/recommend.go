// Package recommend builds categorized problem recommendations from weakness
// scores and a problem catalog.
package recommend

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/metrics"
	"github.com/verte-zerg/solvefeed/internal/model"
)

// MinItems is the feed size backfill tries to reach.
const MinItems = 40

// Limits caps the number of items each category strategy may produce.
var Limits = map[model.Category]int{
	model.CategoryWeakness:   24,
	model.CategoryChallenge:  12,
	model.CategoryReview:     12,
	model.CategoryPopular:    12,
	model.CategoryFoundation: 10,
}

// Input is everything a generation run needs about one user.
type Input struct {
	UserID       string
	Tier         int
	Solved       []model.SolvedProblem
	Weakness     []model.WeaknessScore
	Expectations map[string]model.TagExpectation
}

// Generator produces recommendation snapshots. Each Generate call keeps its
// own state, so a Generator may be shared.
type Generator struct {
	catalog catalog.Catalog
	pacer   catalog.Pacer
	jitter  Jitter
	now     func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithPacer sets the delay strategy between catalog calls.
func WithPacer(p catalog.Pacer) Option {
	return func(g *Generator) { g.pacer = p }
}

// WithJitter sets the score jitter source.
func WithJitter(j Jitter) Option {
	return func(g *Generator) { g.jitter = j }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator returns a Generator. Without options it does not pace calls,
// adds no jitter and uses the wall clock.
func NewGenerator(c catalog.Catalog, opts ...Option) *Generator {
	g := &Generator{
		catalog: c,
		pacer:   catalog.NoPacer{},
		jitter:  NoJitter{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs every category strategy, backfills short feeds and returns an
// unsaved snapshot. Catalog failures are logged and skipped; only context
// errors are returned.
func (g *Generator) Generate(ctx context.Context, in Input) (model.Snapshot, error) {
	start := time.Now()
	avgLevel := AverageLevel(in.Solved, in.Tier)
	solvedIDs := make([]int, len(in.Solved))
	for i, p := range in.Solved {
		solvedIDs[i] = p.ProblemID
	}
	st := newRunState(avgLevel, solvedIDs)

	var items []model.RecommendationItem
	steps := []func() ([]model.RecommendationItem, error){
		func() ([]model.RecommendationItem, error) { return g.weakness(ctx, st, head(in.Weakness, 10)) },
		func() ([]model.RecommendationItem, error) { return g.challenge(ctx, st, head(in.Weakness, 5)) },
		func() ([]model.RecommendationItem, error) { return g.review(ctx, st, in.Weakness) },
		func() ([]model.RecommendationItem, error) { return g.popular(ctx, st) },
		func() ([]model.RecommendationItem, error) {
			return g.foundation(ctx, st, in.Weakness, in.Tier, in.Expectations)
		},
	}
	for _, step := range steps {
		got, err := step()
		if err != nil {
			return model.Snapshot{}, err
		}
		items = append(items, got...)
	}
	if len(items) < MinItems {
		got, err := g.backfill(ctx, st, MinItems-len(items))
		if err != nil {
			return model.Snapshot{}, err
		}
		items = append(items, got...)
	}

	SortByScore(items)
	snap := model.Snapshot{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		GeneratedAt: g.now().UTC(),
		Criteria: model.Criteria{
			UserTier:      in.Tier,
			UserAvgLevel:  avgLevel,
			LevelMin:      max(1, avgLevel-5),
			LevelMax:      min(30, avgLevel+5),
			WeakTags:      weakTagNames(head(in.Weakness, 10)),
			ExcludeSolved: true,
		},
		Items: items,
		Stats: Summarize(items),
	}

	for c, n := range snap.Stats.ByCategory {
		metrics.RecommendationItems.WithLabelValues(string(c)).Add(float64(n))
	}
	metrics.GenerationDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	logging.Ctx(ctx).Info().Str("user", in.UserID).Int("items", len(items)).Int("avg_level", avgLevel).Msg("recommendations generated")
	return snap, nil
}

// AverageLevel is the rounded mean level of solved problems, or 80% of the
// tier when nothing is solved.
func AverageLevel(solved []model.SolvedProblem, tier int) int {
	if len(solved) == 0 {
		return int(math.Floor(float64(tier) * 0.8))
	}
	total := 0
	for _, p := range solved {
		total += p.Level
	}
	return round(float64(total) / float64(len(solved)))
}

// SortByScore orders items by descending score, keeping insertion order on ties.
func SortByScore(items []model.RecommendationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}

// Summarize computes feed stats. Tag coverage lists unique tags in item order.
func Summarize(items []model.RecommendationItem) model.FeedStats {
	stats := model.FeedStats{
		TotalCount:  len(items),
		ByCategory:  make(map[model.Category]int, len(model.Categories)),
		TagCoverage: []string{},
	}
	for _, c := range model.Categories {
		stats.ByCategory[c] = 0
	}
	seen := map[string]bool{}
	total := 0.0
	for _, item := range items {
		stats.ByCategory[item.Category]++
		total += item.Score
		for _, tag := range item.Tags {
			if !seen[tag] {
				seen[tag] = true
				stats.TagCoverage = append(stats.TagCoverage, tag)
			}
		}
	}
	if len(items) > 0 {
		stats.AvgScore = total / float64(len(items))
	}
	return stats
}

// search runs one paced catalog search. A failed search is logged and
// reported as ok=false; only context errors are returned.
func (g *Generator) search(ctx context.Context, cat model.Category, tag string, p catalog.SearchParams) ([]model.SolvedProblem, bool, error) {
	if err := g.pacer.Wait(ctx); err != nil {
		return nil, false, err
	}
	res, err := g.catalog.Search(ctx, p)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, false, cerr
		}
		logging.Ctx(ctx).Warn().Err(err).
			Str("category", string(cat)).
			Str("tag", tag).
			Int("page", p.Page).
			Int("level_min", p.LevelMin).
			Int("level_max", p.LevelMax).
			Msg("catalog search failed")
		return nil, false, nil
	}
	return res.Items, true, nil
}

func head(scores []model.WeaknessScore, n int) []model.WeaknessScore {
	if len(scores) < n {
		return scores
	}
	return scores[:n]
}

func weakTagNames(scores []model.WeaknessScore) []string {
	out := make([]string, 0, len(scores))
	for _, s := range scores {
		out = append(out, s.Tag)
	}
	return out
}

// searchKey is the catalog query key for a scored tag.
func searchKey(w model.WeaknessScore) string {
	if w.Analysis.Key != "" {
		return w.Analysis.Key
	}
	return w.Tag
}
