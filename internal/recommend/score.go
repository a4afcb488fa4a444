package recommend

import (
	"math"

	"github.com/verte-zerg/solvefeed/internal/model"
)

const (
	weightTagWeakness    = 0.30
	weightLevelFitness   = 0.25
	weightStepProgress   = 0.20
	weightProblemQuality = 0.15
	weightDiversity      = 0.10
)

// candidateBreakdown scores a problem found for a weak tag at stepLevel.
// usage is the driving tag's usage count before this pick.
func candidateBreakdown(p model.SolvedProblem, tagWeakness float64, avgLevel, stepLevel, usage int) model.ScoreBreakdown {
	return model.ScoreBreakdown{
		TagWeakness:    tagWeakness,
		LevelFitness:   levelFitness(p.Level, avgLevel, 10),
		StepProgress:   math.Max(0, 1-math.Abs(float64(p.Level-stepLevel))/5),
		ProblemQuality: 0.7*popularity(p.AcceptedUserCount, 10000) + 0.3*triesScore(p.AverageTries, 5, 1),
		Diversity:      math.Max(0, 1-float64(usage)/5),
	}
}

func weightedScore(b model.ScoreBreakdown) float64 {
	return weightTagWeakness*b.TagWeakness +
		weightLevelFitness*b.LevelFitness +
		weightStepProgress*b.StepProgress +
		weightProblemQuality*b.ProblemQuality +
		weightDiversity*b.Diversity
}

// levelFitness is 1 at avgLevel and falls to 0 at span levels away.
func levelFitness(level, avgLevel int, span float64) float64 {
	return math.Max(0, 1-math.Abs(float64(level-avgLevel))/span)
}

func popularity(accepted int, saturation float64) float64 {
	return math.Min(float64(accepted)/saturation, 1)
}

// triesScore rewards low average tries. Problems without data get missing.
func triesScore(avgTries, divisor, missing float64) float64 {
	if avgTries <= 0 {
		return missing
	}
	return math.Max(0, 1-avgTries/divisor)
}

func round(v float64) int {
	return int(math.Round(v))
}
