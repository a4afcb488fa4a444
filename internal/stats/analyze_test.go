package stats

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/verte-zerg/solvefeed/internal/model"
)

var (
	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tagDP   = model.TagRef{Key: "dp", DisplayName: "다이나믹 프로그래밍", ProblemCount: 900}
	tagMath = model.TagRef{Key: "math", DisplayName: "수학", ProblemCount: 6000}
	tagBare = model.TagRef{Key: "graphs"}
)

func sampleProblems() []model.SolvedProblem {
	return []model.SolvedProblem{
		{ProblemID: 1000, Level: 1, Tags: []model.TagRef{tagMath}},
		{ProblemID: 1001, Level: 5, Tags: []model.TagRef{tagMath, tagDP}},
		{ProblemID: 1002, Level: 9, Tags: []model.TagRef{tagDP}},
		{ProblemID: 1003, Level: 12, Tags: []model.TagRef{tagBare}},
	}
}

func sampleDates() map[int]time.Time {
	return map[int]time.Time{
		1000: testNow.Add(-100 * day),
		1001: testNow.Add(-45 * day),
		1002: testNow.Add(-10 * day),
	}
}

func TestAnalyzeTags(t *testing.T) {
	got := AnalyzeTags(sampleProblems(), sampleDates(), testNow)
	if len(got) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(got))
	}

	m := got["수학"]
	if m.SolvedCount != 2 || m.MaxLevel != 5 || m.AvgLevel != 3 || m.Key != "math" {
		t.Fatalf("unexpected math analysis: %+v", m)
	}
	if m.TotalProblemsInTag != 6000 {
		t.Fatalf("expected tag population 6000, got %d", m.TotalProblemsInTag)
	}
	if m.RecentCounts != (model.RecentCounts{Days30: 0, Days60: 1, Days90: 1}) {
		t.Fatalf("unexpected recent counts: %+v", m.RecentCounts)
	}
	if !m.LastSolvedAt.Equal(testNow.Add(-45 * day)) {
		t.Fatalf("unexpected last solved: %v", m.LastSolvedAt)
	}

	dp := got["다이나믹 프로그래밍"]
	if dp.AvgLevel != 7 || dp.RecentCounts.Days30 != 1 {
		t.Fatalf("unexpected dp analysis: %+v", dp)
	}

	bare, ok := got["graphs"]
	if !ok {
		t.Fatalf("expected key fallback for tag without display name")
	}
	if !bare.LastSolvedAt.Equal(testNow) || bare.RecentCounts.Days30 != 1 {
		t.Fatalf("expected missing date to count as now: %+v", bare)
	}
}

func TestAnalyzeTagsAvgLevelMatchesDistribution(t *testing.T) {
	for tag, a := range AnalyzeTags(sampleProblems(), sampleDates(), testNow) {
		total, count := 0, 0
		for level, n := range a.LevelDistribution {
			total += level * n
			count += n
		}
		if count != a.SolvedCount {
			t.Fatalf("%s: distribution count %d != solved %d", tag, count, a.SolvedCount)
		}
		if math.Abs(float64(total)/float64(count)-a.AvgLevel) > 1e-9 {
			t.Fatalf("%s: avg level %v does not match distribution", tag, a.AvgLevel)
		}
	}
}

func TestAnalysisIsDeterministic(t *testing.T) {
	exp := map[string]model.TagExpectation{"수학": {Tag: "수학", BaseCount: 50, TierMultiplier: 1.5}}
	a1 := AnalyzeTags(sampleProblems(), sampleDates(), testNow)
	a2 := AnalyzeTags(sampleProblems(), sampleDates(), testNow)
	if !reflect.DeepEqual(a1, a2) {
		t.Fatalf("analysis differs between identical runs")
	}
	s1 := CalculateWeaknessScores(a1, 12, exp, testNow)
	s2 := CalculateWeaknessScores(a2, 12, exp, testNow)
	if !reflect.DeepEqual(s1, s2) {
		t.Fatalf("weakness scores differ between identical runs")
	}
}

func TestSolvedAtMap(t *testing.T) {
	m := SolvedAtMap([]model.SolveRecord{{ProblemID: 1, SolvedAt: testNow}})
	if !m[1].Equal(testNow) || len(m) != 1 {
		t.Fatalf("unexpected map %v", m)
	}
}
