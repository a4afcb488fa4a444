package recommend

import (
	"context"
	"math"
	"sort"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/model"
)

type step struct {
	level int
	min   int
	max   int
}

// steps builds a staircase of ±1 level bands every 2 levels from..to.
func steps(from, to int) []step {
	var out []step
	for level := from; level <= to; level += 2 {
		s := step{level: level, min: max(1, level-1), max: min(30, level+1)}
		if s.max < s.min {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (g *Generator) weakness(ctx context.Context, st *runState, weak []model.WeaknessScore) ([]model.RecommendationItem, error) {
	limit := Limits[model.CategoryWeakness]
	if len(weak) == 0 {
		return nil, nil
	}
	maxPerTag := int(math.Ceil(float64(limit) / float64(len(weak))))
	full := func(items []model.RecommendationItem, tag string) bool {
		return len(items) >= limit || st.usage(tag) >= maxPerTag
	}

	var items []model.RecommendationItem
	for _, w := range weak {
		if len(items) >= limit {
			break
		}
		from := int(math.Floor(w.Analysis.AvgLevel))
		if w.Analysis.AvgLevel == 0 {
			from = st.avgLevel - 2
		}
		for _, s := range steps(from, st.avgLevel+2) {
			if full(items, w.Tag) {
				break
			}
			found, ok, err := g.search(ctx, model.CategoryWeakness, w.Tag, catalog.SearchParams{
				Tags:      []string{searchKey(w)},
				LevelMin:  s.min,
				LevelMax:  s.max,
				Page:      1,
				Sort:      catalog.SortSolved,
				Direction: catalog.Desc,
			})
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			for _, p := range found {
				if !st.available(p.ProblemID) {
					continue
				}
				if full(items, w.Tag) {
					break
				}
				bd := candidateBreakdown(p, w.TotalScore, st.avgLevel, s.level, st.usage(w.Tag))
				score := weightedScore(bd)
				stepLevel := s.level
				items = append(items, model.RecommendationItem{
					ProblemID:      p.ProblemID,
					Score:          score,
					Category:       model.CategoryWeakness,
					Priority:       round(score * 10),
					Reasons:        g.reasons(w, p, st.avgLevel, model.CategoryWeakness),
					Tags:           p.TagNames(),
					Level:          p.Level,
					StepLevel:      &stepLevel,
					ScoreBreakdown: bd,
				})
				st.take(p.ProblemID)
				st.bump(w.Tag)
			}
		}
	}
	return items, nil
}

func (g *Generator) challenge(ctx context.Context, st *runState, weak []model.WeaknessScore) ([]model.RecommendationItem, error) {
	limit := Limits[model.CategoryChallenge]
	level := min(st.avgLevel+3, 30)

	var items []model.RecommendationItem
	for _, w := range weak {
		if len(items) >= limit {
			break
		}
		found, ok, err := g.search(ctx, model.CategoryChallenge, w.Tag, catalog.SearchParams{
			Tags:      []string{searchKey(w)},
			LevelMin:  level,
			LevelMax:  min(level+3, 30),
			Page:      1,
			Sort:      catalog.SortSolved,
			Direction: catalog.Desc,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, p := range firstN(found, 3) {
			if !st.available(p.ProblemID) {
				continue
			}
			if len(items) >= limit {
				break
			}
			bd := candidateBreakdown(p, w.TotalScore, st.avgLevel, level, st.usage(w.Tag))
			score := weightedScore(bd)
			items = append(items, model.RecommendationItem{
				ProblemID:      p.ProblemID,
				Score:          score * 0.9,
				Category:       model.CategoryChallenge,
				Priority:       round(score * 8),
				Reasons:        g.reasons(w, p, st.avgLevel, model.CategoryChallenge),
				Tags:           p.TagNames(),
				Level:          p.Level,
				ScoreBreakdown: bd,
			})
			st.take(p.ProblemID)
			st.bump(w.Tag)
		}
	}
	return items, nil
}

func (g *Generator) review(ctx context.Context, st *runState, all []model.WeaknessScore) ([]model.RecommendationItem, error) {
	limit := Limits[model.CategoryReview]
	var stale []model.WeaknessScore
	for _, w := range all {
		if w.Details.Recency > 0.5 {
			stale = append(stale, w)
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].Details.Recency > stale[j].Details.Recency
	})
	stale = head(stale, 5)

	var items []model.RecommendationItem
	for _, w := range stale {
		if len(items) >= limit {
			break
		}
		found, ok, err := g.search(ctx, model.CategoryReview, w.Tag, catalog.SearchParams{
			Tags:      []string{searchKey(w)},
			LevelMin:  max(1, st.avgLevel-2),
			LevelMax:  max(1, min(30, st.avgLevel+1)),
			Page:      1,
			Sort:      catalog.SortID,
			Direction: catalog.Desc,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, p := range firstN(found, 3) {
			if !st.available(p.ProblemID) {
				continue
			}
			if len(items) >= limit {
				break
			}
			score := 0.6 + 0.3*w.Details.Recency + 0.1*g.jitter.Float64()
			items = append(items, model.RecommendationItem{
				ProblemID: p.ProblemID,
				Score:     score,
				Category:  model.CategoryReview,
				Priority:  round(score * 7),
				Reasons:   g.reasons(w, p, st.avgLevel, model.CategoryReview),
				Tags:      p.TagNames(),
				Level:     p.Level,
				ScoreBreakdown: model.ScoreBreakdown{
					TagWeakness:    w.TotalScore,
					LevelFitness:   levelFitness(p.Level, st.avgLevel, 10),
					StepProgress:   0.5,
					ProblemQuality: popularity(p.AcceptedUserCount, 10000),
					Diversity:      math.Max(0, 1-float64(st.usage(w.Tag))/5),
				},
			})
			st.take(p.ProblemID)
			st.bump(w.Tag)
		}
	}
	return items, nil
}

// popular is tag-agnostic and leaves tag usage untouched.
func (g *Generator) popular(ctx context.Context, st *runState) ([]model.RecommendationItem, error) {
	limit := Limits[model.CategoryPopular]
	bands := [][2]int{
		{max(1, st.avgLevel-2), min(30, st.avgLevel+2)},
		{max(1, st.avgLevel-5), min(30, st.avgLevel+5)},
		{1, 15},
	}

	var items []model.RecommendationItem
	for _, band := range bands {
		if len(items) >= limit {
			break
		}
		if band[1] < band[0] {
			continue
		}
		found, ok, err := g.search(ctx, model.CategoryPopular, "", catalog.SearchParams{
			LevelMin:  band[0],
			LevelMax:  band[1],
			Page:      1,
			Sort:      catalog.SortSolved,
			Direction: catalog.Desc,
		})
		if err != nil {
			return nil, err
		}
		if !ok || len(found) == 0 {
			continue
		}
		sorted := append([]model.SolvedProblem(nil), found...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].AcceptedUserCount > sorted[j].AcceptedUserCount
		})
		for _, p := range sorted {
			if !st.available(p.ProblemID) {
				continue
			}
			if len(items) >= limit {
				break
			}
			quality := 0.7*popularity(p.AcceptedUserCount, 50000) + 0.3*triesScore(p.AverageTries, 5, 1)
			score := 0.5 + 0.4*quality + 0.1*g.jitter.Float64()
			items = append(items, model.RecommendationItem{
				ProblemID: p.ProblemID,
				Score:     score,
				Category:  model.CategoryPopular,
				Priority:  round(score * 6),
				Reasons:   popularReasons(p),
				Tags:      p.TagNames(),
				Level:     p.Level,
				ScoreBreakdown: model.ScoreBreakdown{
					TagWeakness:    0.3,
					LevelFitness:   levelFitness(p.Level, st.avgLevel, 10),
					StepProgress:   0.5,
					ProblemQuality: quality,
					Diversity:      0.5,
				},
			})
			st.take(p.ProblemID)
		}
	}
	return items, nil
}

// foundation targets poorly covered tags at easy levels. When expectations
// are known, only tags present there qualify.
func (g *Generator) foundation(ctx context.Context, st *runState, all []model.WeaknessScore, tier int, expectations map[string]model.TagExpectation) ([]model.RecommendationItem, error) {
	limit := Limits[model.CategoryFoundation]
	var basics []model.WeaknessScore
	for _, w := range all {
		if w.Details.Coverage <= 0.6 {
			continue
		}
		if len(expectations) > 0 {
			if _, ok := expectations[w.Tag]; !ok {
				continue
			}
		}
		basics = append(basics, w)
		if len(basics) == 3 {
			break
		}
	}
	maxLevel := max(1, min(tier, 10))

	var items []model.RecommendationItem
	for _, w := range basics {
		if len(items) >= limit {
			break
		}
		found, ok, err := g.search(ctx, model.CategoryFoundation, w.Tag, catalog.SearchParams{
			Tags:      []string{searchKey(w)},
			LevelMin:  1,
			LevelMax:  maxLevel,
			Page:      1,
			Sort:      catalog.SortSolved,
			Direction: catalog.Desc,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, p := range firstN(found, 2) {
			if !st.available(p.ProblemID) {
				continue
			}
			if len(items) >= limit {
				break
			}
			items = append(items, model.RecommendationItem{
				ProblemID: p.ProblemID,
				Score:     0.55 + 0.1*g.jitter.Float64(),
				Category:  model.CategoryFoundation,
				Priority:  5,
				Reasons:   foundationReasons(w),
				Tags:      p.TagNames(),
				Level:     p.Level,
				ScoreBreakdown: model.ScoreBreakdown{
					TagWeakness:    w.TotalScore,
					LevelFitness:   0.8,
					StepProgress:   1.0,
					ProblemQuality: popularity(p.AcceptedUserCount, 10000),
					Diversity:      math.Max(0, 1-float64(st.usage(w.Tag))/5),
				},
			})
			st.take(p.ProblemID)
			st.bump(w.Tag)
		}
	}
	return items, nil
}

func firstN(ps []model.SolvedProblem, n int) []model.SolvedProblem {
	if len(ps) < n {
		return ps
	}
	return ps[:n]
}
