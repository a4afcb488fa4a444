package stats

import (
	"sort"

	"github.com/verte-zerg/solvefeed/internal/model"
)

// TopTagsBySolved returns the n most practiced tags.
func TopTagsBySolved(scores []model.WeaknessScore, n int) []string {
	if n <= 0 || len(scores) == 0 {
		return nil
	}
	type item struct {
		tag    string
		solved int
	}
	items := make([]item, 0, len(scores))
	for _, s := range scores {
		items = append(items, item{tag: s.Tag, solved: s.Analysis.SolvedCount})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].solved == items[j].solved {
			return items[i].tag < items[j].tag
		}
		return items[i].solved > items[j].solved
	})
	if n > len(items) {
		n = len(items)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, items[i].tag)
	}
	return out
}
