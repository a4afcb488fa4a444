package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/solvefeed/internal/model"
)

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4}, 2)
	want := []float64{1, 1.5, 2.5, 3.5}
	for i := range want {
		assertClose(t, "moving average", got[i], want[i])
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 1}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{2, 2, 2}); got != "+++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
	if Sparkline(nil) != "" {
		t.Fatalf("expected empty sparkline")
	}
}

func TestRenderWeakTable(t *testing.T) {
	scores := []model.WeaknessScore{
		{Tag: "다이나믹 프로그래밍", TotalScore: 0.71, Analysis: model.TagAnalysis{SolvedCount: 4, AvgLevel: 9.5, MaxLevel: 12}},
		{Tag: "greedy", TotalScore: 0.42, Analysis: model.TagAnalysis{SolvedCount: 20, AvgLevel: 11, MaxLevel: 16}},
		{Tag: "math", TotalScore: 0.2},
	}
	trends := map[string][]float64{"greedy": {0.6, 0.5, 0.42}}
	var buf bytes.Buffer
	if err := RenderWeakTable(&buf, scores, trends, WeakTableOptions{Top: 2}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Weakest Tags", "다이나믹 프로그래밍", "0.710", "G4", "@"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "math") {
		t.Fatalf("expected top 2 only:\n%s", out)
	}

	buf.Reset()
	if err := RenderWeakTable(&buf, nil, nil, WeakTableOptions{}); err != nil {
		t.Fatalf("render empty: %v", err)
	}
	if !strings.Contains(buf.String(), "No tag statistics") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
}

func TestRenderFeedAndSummary(t *testing.T) {
	snap := model.Snapshot{
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Criteria:    model.Criteria{UserAvgLevel: 11, WeakTags: []string{"dp", "greedy"}},
		Items: []model.RecommendationItem{
			{ProblemID: 2579, Score: 0.812, Category: model.CategoryWeakness, Level: 8, Tags: []string{"dp"}, Reasons: []string{"dp needs reinforcement"}},
			{ProblemID: 1000, Score: 0.5, Category: model.CategoryPopular, Level: 1},
		},
		Stats: model.FeedStats{
			TotalCount:  2,
			AvgScore:    0.656,
			ByCategory:  map[model.Category]int{model.CategoryWeakness: 1, model.CategoryPopular: 1},
			TagCoverage: []string{"dp"},
		},
	}
	var buf bytes.Buffer
	if err := RenderFeed(&buf, "Feed", snap.Items, map[int]string{2579: "계단 오르기"}, 0); err != nil {
		t.Fatalf("render feed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"계단 오르기", "S3", "B5", "dp needs reinforcement", "0.812"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in feed:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := RenderFeed(&buf, "Feed", snap.Items, nil, 20); err != nil {
		t.Fatalf("render narrow feed: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if displayWidth(line) > 20 {
			t.Fatalf("line wider than 20 cells: %q", line)
		}
	}

	buf.Reset()
	if err := RenderFeedSummary(&buf, snap); err != nil {
		t.Fatalf("render summary: %v", err)
	}
	out = buf.String()
	for _, want := range []string{"Items: 2", "Avg Score: 0.656", "Gold V (11)", "foundation", "Weak Tags: dp, greedy"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in summary:\n%s", want, out)
		}
	}
}

func TestRenderHistory(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summaries := []model.SnapshotSummary{
		{ID: "b", GeneratedAt: base.Add(time.Hour), TotalCount: 40, AvgScore: 0.7},
		{ID: "a", GeneratedAt: base, TotalCount: 38, AvgScore: 0.5},
	}
	var buf bytes.Buffer
	if err := RenderHistory(&buf, summaries); err != nil {
		t.Fatalf("render history: %v", err)
	}
	if !strings.Contains(buf.String(), "Avg score trend:  @") {
		t.Fatalf("expected rising trend:\n%s", buf.String())
	}
}
