package stats

import (
	"math"
	"sort"
	"time"

	"github.com/verte-zerg/solvefeed/internal/model"
)

const (
	weightCoverage    = 0.25
	weightLevelGap    = 0.25
	weightRecency     = 0.20
	weightCeiling     = 0.20
	weightConsistency = 0.10
)

// CalculateWeaknessScores scores every analyzed tag for a user of the given
// tier, weakest first. Ties are broken by tag name.
func CalculateWeaknessScores(analysis map[string]model.TagAnalysis, tier int, expectations map[string]model.TagExpectation, now time.Time) []model.WeaknessScore {
	expectedLevel := min(tier, 30)
	scores := make([]model.WeaknessScore, 0, len(analysis))
	for tag, a := range analysis {
		expected := ExpectedSolveCount(tag, tier, expectations)
		coverage := 0.0
		if expected > 0 {
			coverage = 1 - math.Min(float64(a.SolvedCount)/float64(expected), 1)
		}

		levelGap := clamp01((float64(expectedLevel) - a.AvgLevel) / 10)

		recency := 1.0
		if a.LastSolvedAt != nil {
			days := math.Floor(now.Sub(*a.LastSolvedAt).Hours() / 24)
			recency = clamp01(days / 90)
		}

		ceiling := clamp01(float64(min(expectedLevel+3, 30)-a.MaxLevel) / 10)
		consistency := consistencyScore(a.LevelDistribution, expectedLevel)

		total := weightCoverage*coverage +
			weightLevelGap*levelGap +
			weightRecency*recency +
			weightCeiling*ceiling +
			weightConsistency*consistency

		scores = append(scores, model.WeaknessScore{
			Tag:        tag,
			TotalScore: clamp01(total),
			Details: model.WeaknessDetails{
				Coverage:    coverage,
				LevelGap:    levelGap,
				Recency:     recency,
				Ceiling:     ceiling,
				Consistency: consistency,
			},
			Analysis: a,
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].TotalScore == scores[j].TotalScore {
			return scores[i].Tag < scores[j].Tag
		}
		return scores[i].TotalScore > scores[j].TotalScore
	})
	return scores
}

// ExpectedSolveCount returns how many solves a tag should have at tier.
func ExpectedSolveCount(tag string, tier int, expectations map[string]model.TagExpectation) int {
	if exp, ok := expectations[tag]; ok {
		factor := 1 + (float64(tier)/30)*(exp.TierMultiplier-1)
		return int(math.Round(float64(exp.BaseCount) * factor))
	}
	return int(math.Round(15 + float64(tier)*1.5))
}

// consistencyScore is high when solves sit well below the expected level.
func consistencyScore(dist map[int]int, expectedLevel int) float64 {
	if len(dist) <= 1 {
		return 0.5
	}
	lower, total := 0, 0
	for level, n := range dist {
		if level < expectedLevel-3 {
			lower += n
		}
		total += n
	}
	if total == 0 {
		return 0.5
	}
	return math.Min(float64(lower)/float64(total)*1.5, 1)
}

// SelectWeakTags returns the names of the top weakest tags.
func SelectWeakTags(scores []model.WeaknessScore, top int) []string {
	if top <= 0 || top > len(scores) {
		top = len(scores)
	}
	out := make([]string, 0, top)
	for _, s := range scores[:top] {
		out = append(out, s.Tag)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
