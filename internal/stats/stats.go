package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/solvefeed/internal/model"
	"github.com/verte-zerg/solvefeed/internal/tier"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// WeakTableOptions controls RenderWeakTable.
type WeakTableOptions struct {
	Top         int
	TrendWindow int
	Width       int
}

// RenderWeakTable prints the weakest tags with their sub-scores and a
// smoothed weakness trend.
func RenderWeakTable(w io.Writer, scores []model.WeaknessScore, trends map[string][]float64, opts WeakTableOptions) error {
	if len(scores) == 0 {
		_, err := fmt.Fprintln(w, "No tag statistics found. Run `solvefeed sync` first.")
		return err
	}
	if opts.Top > 0 && len(scores) > opts.Top {
		scores = scores[:opts.Top]
	}
	if _, err := fmt.Fprintln(w, "Weakest Tags"); err != nil {
		return err
	}
	headers := []string{"#", "Tag", "Score", "Solved", "Avg Lv", "Max", "Coverage", "Gap", "Recency", "Ceiling", "Trend"}
	rows := make([][]string, 0, len(scores))
	for i, s := range scores {
		a := s.Analysis
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			s.Tag,
			fmt.Sprintf("%.3f", s.TotalScore),
			fmt.Sprintf("%d", a.SolvedCount),
			fmt.Sprintf("%.1f", a.AvgLevel),
			tier.Short(a.MaxLevel),
			fmt.Sprintf("%.2f", s.Details.Coverage),
			fmt.Sprintf("%.2f", s.Details.LevelGap),
			fmt.Sprintf("%.2f", s.Details.Recency),
			fmt.Sprintf("%.2f", s.Details.Ceiling),
			Sparkline(MovingAverage(trends[s.Tag], opts.TrendWindow)),
		})
	}
	rightAlign := map[int]bool{0: true, 2: true, 3: true, 4: true, 6: true, 7: true, 8: true, 9: true}
	return writeLines(w, truncateLines(formatTable(headers, rows, rightAlign), opts.Width))
}

// FeedRows builds table cells for recommendation items. titles may be nil.
func FeedRows(items []model.RecommendationItem, titles map[int]string) [][]string {
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		reason := ""
		if len(item.Reasons) > 0 {
			reason = item.Reasons[0]
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.3f", item.Score),
			string(item.Category),
			tier.Short(item.Level),
			fmt.Sprintf("%d", item.ProblemID),
			titles[item.ProblemID],
			strings.Join(item.Tags, ", "),
			reason,
		})
	}
	return rows
}

// FeedHeaders are the column names of FeedRows.
var FeedHeaders = []string{"#", "Score", "Category", "Tier", "ID", "Title", "Tags", "Reason"}

// RenderFeed prints recommendation items as a table truncated to width.
func RenderFeed(w io.Writer, title string, items []model.RecommendationItem, titles map[int]string, width int) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No recommendations found.")
		return err
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	lines := formatTable(FeedHeaders, FeedRows(items, titles), map[int]bool{0: true, 1: true, 4: true})
	return writeLines(w, truncateLines(lines, width))
}

// RenderFeedSummary prints the per-category counts and coverage of a snapshot.
func RenderFeedSummary(w io.Writer, snap model.Snapshot) error {
	s := snap.Stats
	lines := []string{
		"Summary",
		fmt.Sprintf("Generated: %s", snap.GeneratedAt.Local().Format("2006-01-02 15:04")),
		fmt.Sprintf("Items: %d", s.TotalCount),
		fmt.Sprintf("Avg Score: %.3f", s.AvgScore),
		fmt.Sprintf("Avg Level: %s (%d)", tier.Name(snap.Criteria.UserAvgLevel), snap.Criteria.UserAvgLevel),
	}
	for _, c := range model.Categories {
		lines = append(lines, fmt.Sprintf("  %-10s %d", c, s.ByCategory[c]))
	}
	lines = append(lines, fmt.Sprintf("Tag Coverage: %d tags", len(s.TagCoverage)))
	if len(snap.Criteria.WeakTags) > 0 {
		lines = append(lines, fmt.Sprintf("Weak Tags: %s", strings.Join(snap.Criteria.WeakTags, ", ")))
	}
	return writeLines(w, lines)
}

// RenderHistory prints stored snapshot summaries with a score trend.
func RenderHistory(w io.Writer, summaries []model.SnapshotSummary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No snapshots found.")
		return err
	}
	headers := []string{"Generated", "Items", "Avg Score", "ID"}
	rows := make([][]string, 0, len(summaries))
	scores := make([]float64, len(summaries))
	for i, s := range summaries {
		rows = append(rows, []string{
			s.GeneratedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", s.TotalCount),
			fmt.Sprintf("%.3f", s.AvgScore),
			s.ID,
		})
		// Summaries are newest first; the trend reads oldest to newest.
		scores[len(summaries)-1-i] = s.AvgScore
	}
	lines := formatTable(headers, rows, map[int]bool{1: true, 2: true})
	lines = append(lines, "", fmt.Sprintf("Avg score trend: %s", Sparkline(scores)))
	return writeLines(w, lines)
}
