// Package feedui provides the Bubble Tea feed interface.
package feedui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/solvefeed/internal/model"
	"github.com/verte-zerg/solvefeed/internal/recommend"
	"github.com/verte-zerg/solvefeed/internal/stats"
	"github.com/verte-zerg/solvefeed/internal/tier"
)

const (
	tabFeed = iota
	tabWeak
	tabSummary
)

// Widest a single table column may grow before its cells are truncated.
const maxColumnWidth = 40

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model implements the Bubble Tea feed UI.
type Model struct {
	report   stats.Report
	category model.Category
	visible  []model.RecommendationItem

	tabs      []string
	activeTab int
	feed      table.Model
	weak      table.Model
	summary   viewport.Model

	width  int
	height int

	filterMode  bool
	filterInput textinput.Model
	filterError string
}

// NewModel constructs a feed UI over a prebuilt report. category may be empty.
func NewModel(report stats.Report, category model.Category) *Model {
	m := &Model{
		report:   report,
		category: category,
		tabs:     []string{"Feed", "Weak Tags", "Summary"},
		summary:  viewport.New(0, 0),
	}
	m.filterInput = textinput.New()
	m.filterInput.Prompt = "Category: "
	m.filterInput.Placeholder = categoryHint()
	m.filterInput.Cursor.SetMode(cursor.CursorBlink)
	m.feed = newTable()
	m.weak = newTable()
	m.weak.SetColumns(weakData(nil))
	m.refresh()
	m.feed.Focus()
	return m
}

// Category returns the active category filter.
func (m *Model) Category() model.Category {
	return m.category
}

// Visible returns the feed items shown under the current filter.
func (m *Model) Visible() []model.RecommendationItem {
	return m.visible
}

// ActiveTab returns the index of the selected tab.
func (m *Model) ActiveTab() int {
	return m.activeTab
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderSummary()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			return m.startFilter()
		case "c":
			m.category = nextCategory(m.category)
			m.refresh()
			return m, nil
		case "g", "home":
			m.gotoEdge(true)
			return m, nil
		case "G", "end":
			m.gotoEdge(false)
			return m, nil
		}
		var cmd tea.Cmd
		switch m.activeTab {
		case tabFeed:
			m.feed, cmd = m.feed.Update(msg)
		case tabWeak:
			m.weak, cmd = m.weak.Update(msg)
		default:
			m.summary, cmd = m.summary.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func newTable() table.Model {
	t := table.New(table.WithHeight(1))
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

// refresh reapplies the category filter and rebuilds every tab.
func (m *Model) refresh() {
	m.visible = recommend.Filter{Category: m.category}.Apply(m.report.Snapshot.Items)

	cols, rows := feedData(m.visible, m.report.Titles)
	m.feed.SetRows(nil)
	m.feed.SetColumns(cols)
	m.feed.SetRows(rows)
	m.feed.GotoTop()

	cols, rows = weakData(m.report.Scores), weakRows(m.report.Scores, m.report.Trends)
	m.weak.SetRows(nil)
	m.weak.SetColumns(cols)
	m.weak.SetRows(rows)

	m.renderSummary()
}

func feedData(items []model.RecommendationItem, titles map[int]string) ([]table.Column, []table.Row) {
	cells := stats.FeedRows(items, titles)
	rows := make([]table.Row, len(cells))
	for i, c := range cells {
		rows[i] = table.Row(c)
	}
	return columnsFor(stats.FeedHeaders, cells), rows
}

var weakHeaders = []string{"#", "Tag", "Score", "Solved", "Avg Lv", "Max", "Gap", "Recency", "Trend"}

func weakData(scores []model.WeaknessScore) []table.Column {
	return columnsFor(weakHeaders, weakCells(scores, nil))
}

func weakRows(scores []model.WeaknessScore, trends map[string][]float64) []table.Row {
	cells := weakCells(scores, trends)
	rows := make([]table.Row, len(cells))
	for i, c := range cells {
		rows[i] = table.Row(c)
	}
	return rows
}

func weakCells(scores []model.WeaknessScore, trends map[string][]float64) [][]string {
	out := make([][]string, 0, len(scores))
	for i, s := range scores {
		trend := ""
		if trends != nil {
			trend = stats.Sparkline(trends[s.Tag])
		}
		out = append(out, []string{
			fmt.Sprintf("%d", i+1),
			s.Tag,
			fmt.Sprintf("%.3f", s.TotalScore),
			fmt.Sprintf("%d", s.Analysis.SolvedCount),
			fmt.Sprintf("%.1f", s.Analysis.AvgLevel),
			tier.Short(s.Analysis.MaxLevel),
			fmt.Sprintf("%.2f", s.Details.LevelGap),
			fmt.Sprintf("%.2f", s.Details.Recency),
			trend,
		})
	}
	return out
}

// columnsFor sizes columns to the widest cell, counting terminal cells so
// Hangul tag names are not clipped early.
func columnsFor(headers []string, rows [][]string) []table.Column {
	cols := make([]table.Column, len(headers))
	for i, h := range headers {
		w := runewidth.StringWidth(h)
		for _, row := range rows {
			if i < len(row) {
				w = max(w, runewidth.StringWidth(row[i]))
			}
		}
		// Trend sparklines are computed after sizing; leave room for them.
		if h == "Trend" {
			w = max(w, 20)
		}
		cols[i] = table.Column{Title: h, Width: min(w, maxColumnWidth)}
	}
	return cols
}

func (m *Model) renderSummary() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.summary.SetContent(renderSummaryCards(m.report, m.visible, width))
}

func renderSummaryCards(report stats.Report, visible []model.RecommendationItem, width int) string {
	if !report.HasSnapshot {
		return "No feed found. Run `solvefeed sync` first."
	}
	snap := report.Snapshot
	byCategory := make(map[model.Category]int, len(model.Categories))
	var total float64
	for _, item := range visible {
		byCategory[item.Category]++
		total += item.Score
	}
	avg := 0.0
	if len(visible) > 0 {
		avg = total / float64(len(visible))
	}
	coverage := recommend.Summarize(visible).TagCoverage

	levelStyle := cardValueStyle.Foreground(lipgloss.Color(tier.Color(snap.Criteria.UserAvgLevel)))
	cards := []string{
		metricCard("Items", fmt.Sprintf("%d", len(visible)), cardValueStyle),
		metricCard("Avg Score", fmt.Sprintf("%.3f", avg), cardValueStyle),
		metricCard("Tag Coverage", fmt.Sprintf("%d tags", len(coverage)), cardValueStyle),
		metricCard("Avg Level", tier.Name(snap.Criteria.UserAvgLevel), levelStyle),
	}
	perCategory := make([]string, 0, len(model.Categories))
	for _, c := range model.Categories {
		perCategory = append(perCategory, metricCard(string(c), fmt.Sprintf("%d", byCategory[c]), cardValueStyle))
	}

	var body string
	if width < 80 {
		body = strings.Join(append(cards, perCategory...), "\n")
	} else {
		row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards...)
		row2 := lipgloss.JoinHorizontal(lipgloss.Top, perCategory...)
		body = lipgloss.JoinVertical(lipgloss.Left, row1, row2)
	}
	lines := []string{
		body,
		"",
		headerStyle.Render(fmt.Sprintf("Generated %s", snap.GeneratedAt.Local().Format("2006-01-02 15:04"))),
	}
	if len(snap.Criteria.WeakTags) > 0 {
		lines = append(lines, headerStyle.Render("Weak tags: "+strings.Join(snap.Criteria.WeakTags, ", ")))
	}
	return strings.Join(lines, "\n")
}

func metricCard(label, value string, valueStyle lipgloss.Style) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), valueStyle.Render(value))
	return cardStyle.Render(content)
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.filterMode && m.filterError != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.summary.Width = m.width
	m.summary.Height = bodyHeight
	// One line goes to the header row and one to its border.
	for _, t := range []*table.Model{&m.feed, &m.weak} {
		t.SetWidth(m.width)
		t.SetHeight(max(1, bodyHeight-2))
	}
	m.filterInput.Width = max(10, m.width-lipgloss.Width(m.filterInput.Prompt)-2)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	m.feed.Blur()
	m.weak.Blur()
	switch m.activeTab {
	case tabFeed:
		m.feed.Focus()
	case tabWeak:
		m.weak.Focus()
	}
}

func (m *Model) gotoEdge(top bool) {
	switch m.activeTab {
	case tabFeed:
		if top {
			m.feed.GotoTop()
		} else {
			m.feed.GotoBottom()
		}
	case tabWeak:
		if top {
			m.weak.GotoTop()
		} else {
			m.weak.GotoBottom()
		}
	default:
		if top {
			m.summary.GotoTop()
		} else {
			m.summary.GotoBottom()
		}
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	category := string(m.category)
	if category == "" {
		category = "all"
	}
	summary := fmt.Sprintf("Handle: %s  category=%s  items=%d/%d",
		m.report.Handle, category, len(m.visible), len(m.report.Snapshot.Items))
	summary = runewidth.Truncate(summary, m.width, "...")
	return m.renderTabs() + "\n" + headerStyle.Render(summary)
}

func (m *Model) renderBody() string {
	if m.filterMode {
		return "Filter by category (enter to apply, esc to cancel)\n" + m.filterInput.View()
	}
	switch m.activeTab {
	case tabFeed:
		if len(m.visible) == 0 {
			if !m.report.HasSnapshot {
				return "No feed found. Run `solvefeed sync` first."
			}
			return "No items in this category."
		}
		return tableMutedStyle.Render(m.feed.View())
	case tabWeak:
		if len(m.report.Scores) == 0 {
			return "No tag statistics found."
		}
		return tableMutedStyle.Render(m.weak.View())
	default:
		return m.summary.View()
	}
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		help := headerStyle.Render("enter: apply  esc: cancel  empty: all categories")
		if m.filterError != "" {
			return help + "\n" + errorStyle.Render(m.filterError)
		}
		return help
	}
	return headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Filter: /  Cycle: c  Quit: q")
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.filterInput.SetValue(string(m.category))
	m.filterInput.CursorEnd()
	return m, m.filterInput.Focus()
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		m.filterInput.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
		category, ok := model.ParseCategory(value)
		if !ok {
			m.filterError = fmt.Sprintf("unknown category %q (use %s)", value, categoryHint())
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.filterInput.Blur()
		m.category = category
		m.refresh()
		m.updateLayout()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

// nextCategory cycles all -> weakness -> ... -> foundation -> all.
func nextCategory(c model.Category) model.Category {
	if c == "" {
		return model.Categories[0]
	}
	for i, known := range model.Categories {
		if known == c && i+1 < len(model.Categories) {
			return model.Categories[i+1]
		}
	}
	return ""
}

func categoryHint() string {
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}
