package feedui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/solvefeed/internal/model"
	"github.com/verte-zerg/solvefeed/internal/stats"
)

func testReport() stats.Report {
	items := []model.RecommendationItem{
		{ProblemID: 1000, Score: 0.9, Category: model.CategoryWeakness, Level: 8, Tags: []string{"다이나믹 프로그래밍"}, Reasons: []string{"weak"}},
		{ProblemID: 1001, Score: 0.8, Category: model.CategoryWeakness, Level: 9, Tags: []string{"그리디 알고리즘"}},
		{ProblemID: 1002, Score: 0.7, Category: model.CategoryReview, Level: 6, Tags: []string{"수학"}},
		{ProblemID: 1003, Score: 0.6, Category: model.CategoryPopular, Level: 5, Tags: []string{"구현"}},
	}
	return stats.Report{
		Handle:      "alice",
		HasSnapshot: true,
		Snapshot: model.Snapshot{
			ID:          "snap",
			GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Criteria:    model.Criteria{UserAvgLevel: 8, WeakTags: []string{"다이나믹 프로그래밍"}},
			Items:       items,
		},
		Titles: map[int]string{1000: "A+B"},
		Scores: []model.WeaknessScore{
			{Tag: "다이나믹 프로그래밍", TotalScore: 0.7, Analysis: model.TagAnalysis{SolvedCount: 3, MaxLevel: 9}},
			{Tag: "수학", TotalScore: 0.2, Analysis: model.TagAnalysis{SolvedCount: 40, MaxLevel: 14}},
		},
		Trends: map[string][]float64{"수학": {0.4, 0.3, 0.2}},
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m *Model, msgs ...tea.Msg) tea.Cmd {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		if next != m {
			t.Fatalf("expected Update to return the same model")
		}
	}
	return cmd
}

func TestCategoryFilterViaSlash(t *testing.T) {
	m := NewModel(testReport(), "")
	if got := len(m.Visible()); got != 4 {
		t.Fatalf("expected 4 visible items, got %d", got)
	}
	send(t, m, keyRunes("/"), keyRunes("weakness"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.Category() != model.CategoryWeakness {
		t.Fatalf("expected weakness filter, got %q", m.Category())
	}
	if got := len(m.Visible()); got != 2 {
		t.Fatalf("expected 2 weakness items, got %d", got)
	}
	for _, item := range m.Visible() {
		if item.Category != model.CategoryWeakness {
			t.Fatalf("unexpected category %s", item.Category)
		}
	}

	// An empty value clears the filter.
	send(t, m, keyRunes("/"))
	m.filterInput.SetValue("")
	send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Category() != "" || len(m.Visible()) != 4 {
		t.Fatalf("expected filter cleared, got %q with %d items", m.Category(), len(m.Visible()))
	}
}

func TestCategoryFilterRejectsUnknown(t *testing.T) {
	m := NewModel(testReport(), "")
	send(t, m, keyRunes("/"), keyRunes("bogus"), tea.KeyMsg{Type: tea.KeyEnter})
	if !m.filterMode {
		t.Fatalf("expected filter form to stay open")
	}
	if !strings.Contains(m.filterError, "bogus") {
		t.Fatalf("expected error naming the input, got %q", m.filterError)
	}
	send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.filterMode || m.Category() != "" {
		t.Fatalf("expected esc to cancel without changing the filter")
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewModel(testReport(), "")
	cmd := send(t, m, keyRunes("q"))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}

	// q is text while the filter form is open.
	m = NewModel(testReport(), "")
	send(t, m, keyRunes("/"), keyRunes("q"))
	if !m.filterMode || m.filterInput.Value() != "q" {
		t.Fatalf("expected q typed into the filter, got %q", m.filterInput.Value())
	}
}

func TestTabNavigationWraps(t *testing.T) {
	m := NewModel(testReport(), "")
	send(t, m, keyRunes("l"))
	if m.ActiveTab() != tabWeak {
		t.Fatalf("expected weak tab, got %d", m.ActiveTab())
	}
	send(t, m, tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyRight})
	if m.ActiveTab() != tabFeed {
		t.Fatalf("expected wrap to feed tab, got %d", m.ActiveTab())
	}
	send(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	if m.ActiveTab() != tabSummary {
		t.Fatalf("expected wrap to summary tab, got %d", m.ActiveTab())
	}
}

func TestCycleCategory(t *testing.T) {
	m := NewModel(testReport(), model.CategoryFoundation)
	if len(m.Visible()) != 0 {
		t.Fatalf("expected no foundation items")
	}
	send(t, m, keyRunes("c"))
	if m.Category() != "" {
		t.Fatalf("expected cycle back to all, got %q", m.Category())
	}
	send(t, m, keyRunes("c"))
	if m.Category() != model.CategoryWeakness {
		t.Fatalf("expected weakness after all, got %q", m.Category())
	}
}

func TestViewRendersTabs(t *testing.T) {
	m := NewModel(testReport(), "")
	if m.View() != "" {
		t.Fatalf("expected empty view before the first resize")
	}
	send(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	view := m.View()
	if !containsAll(view, []string{"Feed", "Weak Tags", "Summary", "alice", "A+B"}) {
		t.Fatalf("feed view missing expected segments:\n%s", view)
	}
	if got := len(strings.Split(view, "\n")); got != 30 {
		t.Fatalf("expected 30 lines, got %d", got)
	}

	send(t, m, keyRunes("l"), keyRunes("l"))
	view = m.View()
	if !containsAll(view, []string{"Items", "Avg Score", "Tag Coverage", "weakness"}) {
		t.Fatalf("summary view missing cards:\n%s", view)
	}
}

func TestViewWithoutSnapshot(t *testing.T) {
	m := NewModel(stats.Report{Handle: "bob"}, "")
	send(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	if !strings.Contains(m.View(), "solvefeed sync") {
		t.Fatalf("expected sync hint, got:\n%s", m.View())
	}
}

func TestColumnsUseDisplayWidth(t *testing.T) {
	cols := columnsFor([]string{"Tag"}, [][]string{{"수학"}})
	if cols[0].Width != 4 {
		t.Fatalf("expected width 4 for two Hangul syllables, got %d", cols[0].Width)
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
