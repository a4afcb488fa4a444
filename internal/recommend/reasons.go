package recommend

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/solvefeed/internal/model"
	"github.com/verte-zerg/solvefeed/internal/tier"
)

func (g *Generator) reasons(w model.WeaknessScore, p model.SolvedProblem, avgLevel int, c model.Category) []string {
	tierName := tier.Name(p.Level)
	var out []string
	switch c {
	case model.CategoryWeakness:
		out = append(out, fmt.Sprintf("%s needs reinforcement", w.Tag))
		if w.Details.Coverage > 0.5 {
			out = append(out, fmt.Sprintf("few %s problems solved", w.Tag))
		}
		if w.Details.Recency > 0.5 {
			out = append(out, "no recent solves")
		}
	case model.CategoryChallenge:
		out = append(out, fmt.Sprintf("step up in %s", w.Tag))
		out = append(out, fmt.Sprintf("goal: reach %s", tierName))
	case model.CategoryReview:
		out = append(out, fmt.Sprintf("review %s", w.Tag))
		if last := w.Analysis.LastSolvedAt; last != nil {
			days := int(math.Floor(g.now().Sub(*last).Hours() / 24))
			out = append(out, fmt.Sprintf("not practiced for %d days", days))
		}
	}

	diff := p.Level - avgLevel
	switch {
	case diff >= -1 && diff <= 1:
		out = append(out, fmt.Sprintf("right difficulty (%s)", tierName))
	case diff > 0:
		out = append(out, fmt.Sprintf("challenging difficulty (%s)", tierName))
	}
	return out
}

func popularReasons(p model.SolvedProblem) []string {
	return []string{
		fmt.Sprintf("popular: solved by %s users", humanize.Comma(int64(p.AcceptedUserCount))),
		fmt.Sprintf("difficulty: %s", tier.Name(p.Level)),
	}
}

func foundationReasons(w model.WeaknessScore) []string {
	return []string{
		fmt.Sprintf("build %s fundamentals", w.Tag),
		"solidify the basics",
	}
}

func backfillReasons(p model.SolvedProblem) []string {
	return []string{
		"extra practice to round out the feed",
		fmt.Sprintf("solved by %s users", humanize.Comma(int64(p.AcceptedUserCount))),
	}
}

func exploreReasons(tag string, p model.SolvedProblem) []string {
	return []string{
		fmt.Sprintf("related to %s", tag),
		fmt.Sprintf("solved by %s users", humanize.Comma(int64(p.AcceptedUserCount))),
	}
}
