package recommend

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/metrics"
	"github.com/verte-zerg/solvefeed/internal/model"
)

// Realtime result limits.
const (
	DefaultLimit = 120
	MaxLimit     = 300
)

const (
	explorePages    = 4
	defaultWeakness = 0.3
	otherTag        = "etc"
)

// DefaultTags is the tag pool used when a user has no tag statistics.
var DefaultTags = []string{"implementation", "data_structures", "graphs", "greedy", "dp"}

// Query filters a realtime exploration. Zero levels derive from the tier.
type Query struct {
	Category      model.Category
	LevelMin      int
	LevelMax      int
	Tags          []string
	ExcludeSolved bool
	Limit         int
}

// ExploreInput is the stored user data the explorer scores against.
type ExploreInput struct {
	Tier      int
	SolvedIDs []int
	Weakness  []model.WeaknessScore
}

// ClampLimit applies the default and bounds to a requested result limit.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return max(1, min(MaxLimit, n))
}

// Explorer answers interactive queries directly against the catalog. It
// does not pace calls and keeps no state between calls.
type Explorer struct {
	catalog catalog.Catalog
}

// NewExplorer returns an Explorer over c.
func NewExplorer(c catalog.Catalog) *Explorer {
	return &Explorer{catalog: c}
}

type poolTag struct {
	key  string
	name string
}

type exploreRun struct {
	q        Query
	avgLevel int
	solved   map[int]bool
	used     map[int]bool
	usage    map[string]int
	weakness map[string]float64
	items    []model.RecommendationItem
}

// Explore builds up to q.Limit scored candidates, tag-scoped first and then
// tag-agnostic, filtered by category and sorted by score.
func (e *Explorer) Explore(ctx context.Context, in ExploreInput, q Query) ([]model.RecommendationItem, error) {
	start := time.Now()
	q.Limit = ClampLimit(q.Limit)
	avg := 8
	if in.Tier > 0 {
		avg = max(1, min(30, round(float64(in.Tier)*0.8)))
	}
	run := &exploreRun{
		q:        q,
		avgLevel: avg,
		solved:   make(map[int]bool, len(in.SolvedIDs)),
		used:     map[int]bool{},
		usage:    map[string]int{},
		weakness: make(map[string]float64, len(in.Weakness)),
	}
	for _, id := range in.SolvedIDs {
		run.solved[id] = true
	}
	for _, w := range in.Weakness {
		run.weakness[w.Tag] = w.TotalScore
	}
	lo, hi := levelBand(avg, q.LevelMin, q.LevelMax)

	for _, tag := range tagPool(q.Tags, in.Weakness) {
		if run.full() {
			break
		}
		err := e.collect(ctx, run, tag.key, lo, hi, func(p model.SolvedProblem) string { return tag.name })
		if err != nil {
			return nil, err
		}
	}

	if !run.full() {
		bands := [][2]int{
			{lo, hi},
			{max(1, avg-10), min(30, avg+10)},
			{1, 30},
		}
		primary := func(p model.SolvedProblem) string {
			if len(p.Tags) > 0 {
				return p.Tags[0].Name()
			}
			return otherTag
		}
		for _, band := range bands {
			if run.full() {
				break
			}
			if err := e.collect(ctx, run, "", band[0], band[1], primary); err != nil {
				return nil, err
			}
		}
	}

	items := run.items
	if q.Category != "" {
		filtered := items[:0]
		for _, item := range items {
			if item.Category == q.Category {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	SortByScore(items)
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}
	metrics.GenerationDuration.WithLabelValues("explore").Observe(time.Since(start).Seconds())
	return items, nil
}

// collect pages through every sort mode for one tag key ("" for none).
func (e *Explorer) collect(ctx context.Context, run *exploreRun, key string, lo, hi int, primary func(model.SolvedProblem) string) error {
	var tags []string
	if key != "" {
		tags = []string{key}
	}
	for _, mode := range sortModes {
		for page := 1; page <= explorePages; page++ {
			if run.full() {
				return nil
			}
			res, err := e.catalog.Search(ctx, catalog.SearchParams{
				Tags:      tags,
				LevelMin:  lo,
				LevelMax:  hi,
				Page:      page,
				Sort:      mode.sort,
				Direction: mode.dir,
			})
			if err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return cerr
				}
				logging.Ctx(ctx).Warn().Err(err).Str("tag", key).Int("page", page).Msg("realtime search failed")
				break
			}
			if len(res.Items) == 0 {
				break
			}
			for _, p := range res.Items {
				run.push(p, primary(p))
				if run.full() {
					break
				}
			}
			if len(res.Items) < catalog.PageSize {
				break
			}
		}
	}
	return nil
}

func (r *exploreRun) full() bool {
	return len(r.items) >= r.q.Limit
}

func (r *exploreRun) push(p model.SolvedProblem, tag string) {
	if r.full() || r.used[p.ProblemID] {
		return
	}
	if r.q.ExcludeSolved && r.solved[p.ProblemID] {
		return
	}
	weak, ok := r.weakness[tag]
	if !ok {
		weak = defaultWeakness
	}
	fitness := levelFitness(p.Level, r.avgLevel, 12)
	quality := 0.7*popularity(p.AcceptedUserCount, 60000) + 0.3*triesScore(p.AverageTries, 6, 0.6)
	diversity := math.Max(0, 1-float64(r.usage[tag])/8)
	score := 0.35 + 0.3*weak + 0.2*fitness + 0.1*quality + 0.05*diversity

	category := r.q.Category
	if category == "" {
		category = inferCategory(p.Level, r.avgLevel, weak)
	}
	r.items = append(r.items, model.RecommendationItem{
		ProblemID: p.ProblemID,
		Score:     score,
		Category:  category,
		Priority:  max(3, round(score*10)),
		Reasons:   exploreReasons(tag, p),
		Tags:      p.TagNames(),
		Level:     p.Level,
		ScoreBreakdown: model.ScoreBreakdown{
			TagWeakness:    weak,
			LevelFitness:   fitness,
			StepProgress:   0.5,
			ProblemQuality: quality,
			Diversity:      diversity,
		},
	})
	r.used[p.ProblemID] = true
	r.usage[tag]++
}

// levelBand fills unset bounds with avg±6. A derived bound never crosses an
// explicit one.
func levelBand(avg, lo, hi int) (int, int) {
	switch {
	case lo <= 0 && hi <= 0:
		return max(1, avg-6), min(30, avg+6)
	case lo <= 0:
		return min(hi, max(1, avg-6)), hi
	case hi <= 0:
		return lo, max(lo, min(30, avg+6))
	}
	return lo, hi
}

func inferCategory(level, avgLevel int, weak float64) model.Category {
	switch {
	case level >= avgLevel+2:
		return model.CategoryChallenge
	case weak >= 0.55:
		return model.CategoryWeakness
	case level <= min(10, avgLevel-2):
		return model.CategoryFoundation
	default:
		return model.CategoryPopular
	}
}

// tagPool resolves requested tags (keys or display names) against the scored
// tags, falling back to the 12 weakest tags and then DefaultTags.
func tagPool(requested []string, weakness []model.WeaknessScore) []poolTag {
	var pool []poolTag
	for _, t := range requested {
		if t == "" {
			continue
		}
		pt := poolTag{key: t, name: t}
		for _, w := range weakness {
			if w.Tag == t || w.Analysis.Key == t {
				pt = poolTag{key: searchKey(w), name: w.Tag}
				break
			}
		}
		pool = append(pool, pt)
	}
	if len(pool) > 0 {
		return pool
	}
	ranked := append([]model.WeaknessScore(nil), weakness...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	for _, w := range head(ranked, 12) {
		pool = append(pool, poolTag{key: searchKey(w), name: w.Tag})
	}
	if len(pool) > 0 {
		return pool
	}
	for _, key := range DefaultTags {
		pool = append(pool, poolTag{key: key, name: key})
	}
	return pool
}
