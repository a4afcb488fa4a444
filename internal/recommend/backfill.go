package recommend

import (
	"context"
	"math"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/model"
)

const backfillPages = 6

type sortMode struct {
	sort catalog.Sort
	dir  catalog.Direction
}

var sortModes = []sortMode{
	{catalog.SortSolved, catalog.Desc},
	{catalog.SortAverageTry, catalog.Asc},
	{catalog.SortID, catalog.Asc},
}

// Backfill finds up to needed popular-category items around avgLevel,
// skipping exclude. It is used to top up stored feeds on read.
func (g *Generator) Backfill(ctx context.Context, avgLevel int, exclude []int, needed int) ([]model.RecommendationItem, error) {
	return g.backfill(ctx, newRunState(avgLevel, exclude), needed)
}

// backfill widens the level band, varies the sort and pages through results
// until needed items are found or the catalog runs dry.
func (g *Generator) backfill(ctx context.Context, st *runState, needed int) ([]model.RecommendationItem, error) {
	if needed <= 0 {
		return nil, nil
	}
	bands := [][2]int{
		{max(1, st.avgLevel-2), min(30, st.avgLevel+2)},
		{max(1, st.avgLevel-5), min(30, st.avgLevel+5)},
		{1, 30},
	}

	var items []model.RecommendationItem
	for _, band := range bands {
		if band[1] < band[0] {
			continue
		}
		for _, mode := range sortModes {
			for page := 1; page <= backfillPages; page++ {
				if len(items) >= needed {
					return items, nil
				}
				found, ok, err := g.search(ctx, model.CategoryPopular, "", catalog.SearchParams{
					LevelMin:  band[0],
					LevelMax:  band[1],
					Page:      page,
					Sort:      mode.sort,
					Direction: mode.dir,
				})
				if err != nil {
					return nil, err
				}
				if !ok || len(found) == 0 {
					break
				}
				for _, p := range found {
					if len(items) >= needed {
						break
					}
					if !st.available(p.ProblemID) {
						continue
					}
					items = append(items, g.backfillItem(st, p))
					st.take(p.ProblemID)
				}
				if len(found) < catalog.PageSize {
					break
				}
			}
		}
	}
	return items, nil
}

func (g *Generator) backfillItem(st *runState, p model.SolvedProblem) model.RecommendationItem {
	tags := p.TagNames()
	diversity := 0.5
	if len(tags) > 0 {
		st.bump(tags[0])
		diversity = math.Max(0, 1-float64(st.usage(tags[0])-1)/8)
	}
	fitness := levelFitness(p.Level, st.avgLevel, 12)
	pop := popularity(p.AcceptedUserCount, 60000)
	score := 0.45 + 0.25*fitness + 0.25*pop + 0.05*g.jitter.Float64()
	return model.RecommendationItem{
		ProblemID: p.ProblemID,
		Score:     score,
		Category:  model.CategoryPopular,
		Priority:  max(3, round(score*10)),
		Reasons:   backfillReasons(p),
		Tags:      tags,
		Level:     p.Level,
		ScoreBreakdown: model.ScoreBreakdown{
			TagWeakness:    0.3,
			LevelFitness:   fitness,
			StepProgress:   0.4,
			ProblemQuality: pop,
			Diversity:      diversity,
		},
	}
}
