package stats

import (
	"math"
	"testing"

	"github.com/verte-zerg/solvefeed/internal/model"
)

func TestExpectedSolveCount(t *testing.T) {
	if got := ExpectedSolveCount("x", 10, nil); got != 30 {
		t.Fatalf("expected fallback 30, got %d", got)
	}
	exp := map[string]model.TagExpectation{"x": {BaseCount: 20, TierMultiplier: 1.5}}
	// 20 * (1 + 15/30*0.5) = 25
	if got := ExpectedSolveCount("x", 15, exp); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
}

func TestWeaknessScoreComponents(t *testing.T) {
	last := testNow.Add(-45 * day)
	analysis := map[string]model.TagAnalysis{
		"dp": {
			Tag:               "dp",
			SolvedCount:       3,
			AvgLevel:          5,
			MaxLevel:          6,
			LevelDistribution: map[int]int{4: 1, 5: 1, 6: 1},
			LastSolvedAt:      &last,
		},
	}
	scores := CalculateWeaknessScores(analysis, 15, nil, testNow)
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	d := scores[0].Details
	// expected count round(15+22.5)=38
	assertClose(t, "coverage", d.Coverage, 1-3.0/38)
	assertClose(t, "levelGap", d.LevelGap, 1)
	assertClose(t, "recency", d.Recency, 0.5)
	assertClose(t, "ceiling", d.Ceiling, 1)
	assertClose(t, "consistency", d.Consistency, 1)
	want := 0.25*(1-3.0/38) + 0.25 + 0.2*0.5 + 0.2 + 0.1
	assertClose(t, "total", scores[0].TotalScore, want)
}

func TestWeaknessConsistencyInsufficientData(t *testing.T) {
	analysis := map[string]model.TagAnalysis{
		"x": {Tag: "x", SolvedCount: 4, AvgLevel: 10, MaxLevel: 10, LevelDistribution: map[int]int{10: 4}},
	}
	scores := CalculateWeaknessScores(analysis, 10, nil, testNow)
	assertClose(t, "consistency", scores[0].Details.Consistency, 0.5)
	assertClose(t, "recency", scores[0].Details.Recency, 1)
}

func TestWeaknessScoresBoundedAndSorted(t *testing.T) {
	old := testNow.Add(-2000 * day)
	future := testNow.Add(10 * day)
	analysis := map[string]model.TagAnalysis{
		"weak":   {Tag: "weak", SolvedCount: 0, LevelDistribution: map[int]int{}},
		"strong": {Tag: "strong", SolvedCount: 500, AvgLevel: 29, MaxLevel: 30, LevelDistribution: map[int]int{28: 200, 30: 300}, LastSolvedAt: &future},
		"stale":  {Tag: "stale", SolvedCount: 5, AvgLevel: 2, MaxLevel: 3, LevelDistribution: map[int]int{1: 2, 3: 3}, LastSolvedAt: &old},
	}
	for _, tier := range []int{0, 1, 15, 30, 31} {
		scores := CalculateWeaknessScores(analysis, tier, nil, testNow)
		for i, s := range scores {
			for name, v := range map[string]float64{
				"total":       s.TotalScore,
				"coverage":    s.Details.Coverage,
				"levelGap":    s.Details.LevelGap,
				"recency":     s.Details.Recency,
				"ceiling":     s.Details.Ceiling,
				"consistency": s.Details.Consistency,
			} {
				if v < 0 || v > 1 {
					t.Fatalf("tier %d tag %s: %s out of range: %v", tier, s.Tag, name, v)
				}
			}
			if i > 0 && s.TotalScore > scores[i-1].TotalScore {
				t.Fatalf("tier %d: scores not sorted descending", tier)
			}
		}
	}
}

func TestCoverageMonotonicInSolvedCount(t *testing.T) {
	last := testNow.Add(-5 * day)
	prev := math.Inf(1)
	for solved := 0; solved <= 60; solved++ {
		analysis := map[string]model.TagAnalysis{
			"t": {Tag: "t", SolvedCount: solved, AvgLevel: 8, MaxLevel: 10, LevelDistribution: map[int]int{8: 1, 10: 1}, LastSolvedAt: &last},
		}
		cov := CalculateWeaknessScores(analysis, 12, nil, testNow)[0].Details.Coverage
		if cov > prev {
			t.Fatalf("coverage increased at solved=%d: %v > %v", solved, cov, prev)
		}
		prev = cov
	}
	if prev != 0 {
		t.Fatalf("expected coverage to reach 0 past the expected count, got %v", prev)
	}
}

func TestSelectWeakTags(t *testing.T) {
	scores := []model.WeaknessScore{{Tag: "a"}, {Tag: "b"}, {Tag: "c"}}
	if got := SelectWeakTags(scores, 2); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected selection %v", got)
	}
	if got := SelectWeakTags(scores, 0); len(got) != 3 {
		t.Fatalf("expected all tags for top=0, got %v", got)
	}
}

func TestTopTagsBySolved(t *testing.T) {
	scores := []model.WeaknessScore{
		{Tag: "b", Analysis: model.TagAnalysis{SolvedCount: 3}},
		{Tag: "a", Analysis: model.TagAnalysis{SolvedCount: 3}},
		{Tag: "c", Analysis: model.TagAnalysis{SolvedCount: 9}},
	}
	top := TopTagsBySolved(scores, 2)
	if len(top) != 2 || top[0] != "c" || top[1] != "a" {
		t.Fatalf("unexpected order: %v", top)
	}
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s: got %v, want %v", name, got, want)
	}
}
