package recommend

import "github.com/verte-zerg/solvefeed/internal/model"

// DailyLimit caps the number of daily picks.
const DailyLimit = 10

// Daily takes the first perCategory items of each category from a
// score-sorted feed and returns the best DailyLimit of them.
func Daily(items []model.RecommendationItem, perCategory int) []model.RecommendationItem {
	if perCategory <= 0 {
		perCategory = 2
	}
	var picks []model.RecommendationItem
	for _, c := range model.Categories {
		n := 0
		for _, item := range items {
			if n >= perCategory {
				break
			}
			if item.Category == c {
				picks = append(picks, item)
				n++
			}
		}
	}
	SortByScore(picks)
	if len(picks) > DailyLimit {
		picks = picks[:DailyLimit]
	}
	return picks
}

// Filter narrows a stored feed. Zero-valued fields do not filter.
type Filter struct {
	Category model.Category
	LevelMin int
	LevelMax int
	Tags     []string
	Exclude  map[int]bool
}

// Apply returns the items matching f, preserving order.
func (f Filter) Apply(items []model.RecommendationItem) []model.RecommendationItem {
	out := make([]model.RecommendationItem, 0, len(items))
	for _, item := range items {
		if f.Category != "" && item.Category != f.Category {
			continue
		}
		if f.LevelMin > 0 && item.Level < f.LevelMin {
			continue
		}
		if f.LevelMax > 0 && item.Level > f.LevelMax {
			continue
		}
		if len(f.Tags) > 0 && !anyTag(item.Tags, f.Tags) {
			continue
		}
		if f.Exclude[item.ProblemID] {
			continue
		}
		out = append(out, item)
	}
	return out
}

func anyTag(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
