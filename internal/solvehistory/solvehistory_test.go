package solvehistory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func statusRow(problemID int, stamp string, asTitle bool) string {
	when := stamp
	if asTitle {
		when = fmt.Sprintf(`<a href="#" title="%s">some time ago</a>`, stamp)
	}
	return fmt.Sprintf(`<tr><td>1</td><td>user</td><td><a href="/problem/%d">%d</a></td>`+
		`<td>맞았습니다!!</td><td>2020</td><td>0</td><td>C++17</td><td>300</td><td>%s</td></tr>`,
		problemID, problemID, when)
}

func statusPage(rows ...string) string {
	return `<html><body><table id="status-table"><thead><tr><th>#</th></tr></thead><tbody>` +
		strings.Join(rows, "") + `</tbody></table></body></html>`
}

func newTestScraper(url string, pages int) *Scraper {
	s := NewScraper(Options{BaseURL: url, MaxPages: pages, Interval: -1})
	s.now = func() time.Time { return testNow }
	return s
}

func TestSolveDatesKeepsEarliest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if r.URL.Path != "/status" || q.Get("user_id") != "alice" || q.Get("result_id") != "4" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if q.Get("page") == "1" {
			rows := []string{
				statusRow(1000, "2026-02-20 10:00:00", true),
				statusRow(1753, "3일 전", false),
				statusRow(2579, "5분 전", false),
			}
			for i := 0; i < 17; i++ {
				rows = append(rows, statusRow(1000, "2026-02-25 10:00:00", true))
			}
			fmt.Fprint(w, statusPage(rows...))
			return
		}
		fmt.Fprint(w, statusPage(
			statusRow(1000, "2025-12-31 23:00:00", true),
			`<tr><td colspan="9">broken</td></tr>`,
			statusRow(9999, "unknown", false),
		))
	}))
	defer srv.Close()

	dates, err := newTestScraper(srv.URL, 5).SolveDates(context.Background(), "alice")
	if err != nil {
		t.Fatalf("solve dates: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected a short page to stop paging after 2 calls, got %d", got)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 problems, got %v", dates)
	}
	kst := time.FixedZone("KST", 9*60*60)
	if want := time.Date(2025, 12, 31, 23, 0, 0, 0, kst); !dates[1000].Equal(want) {
		t.Fatalf("expected earliest time %v, got %v", want, dates[1000])
	}
	if want := testNow.Add(-3 * day); !dates[1753].Equal(want) {
		t.Fatalf("unexpected relative date %v", dates[1753])
	}
	if want := testNow.Add(-5 * time.Minute); !dates[2579].Equal(want) {
		t.Fatalf("unexpected relative date %v", dates[2579])
	}
}

func TestSolveDatesRespectsMaxPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		rows := make([]string, 0, rowsPerPage)
		for i := 0; i < rowsPerPage; i++ {
			rows = append(rows, statusRow(n*100+i, "2026-01-01 00:00:00", true))
		}
		fmt.Fprint(w, statusPage(rows...))
	}))
	defer srv.Close()

	dates, err := newTestScraper(srv.URL, 3).SolveDates(context.Background(), "bob")
	if err != nil {
		t.Fatalf("solve dates: %v", err)
	}
	if calls.Load() != 3 || len(dates) != 60 {
		t.Fatalf("expected 3 pages and 60 problems, got %d pages and %d problems", calls.Load(), len(dates))
	}
}

func TestSolveDatesFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if dates, err := newTestScraper(srv.URL, 2).SolveDates(context.Background(), "carol"); err == nil || dates != nil {
		t.Fatalf("expected an error and no dates, got %v %v", dates, err)
	}
}

func TestParseSubmittedAt(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-02-28 21:00:00", time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC), true},
		{" 2시간 전 ", testNow.Add(-2 * time.Hour), true},
		{"10일 전", testNow.Add(-10 * day), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, c := range cases {
		got, ok := parseSubmittedAt(c.in, testNow)
		if ok != c.ok || (ok && !got.Equal(c.want)) {
			t.Fatalf("parseSubmittedAt(%q) = %v %v, want %v %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSyntheticDates(t *testing.T) {
	dates := SyntheticDates([]int{3000, 1000, 2000}, testNow)
	if !dates[3000].Equal(testNow) || !dates[2000].Equal(testNow.Add(-day)) || !dates[1000].Equal(testNow.Add(-2*day)) {
		t.Fatalf("unexpected synthetic dates %v", dates)
	}
	if len(SyntheticDates(nil, testNow)) != 0 {
		t.Fatalf("expected no dates for no ids")
	}
}

func TestRecords(t *testing.T) {
	scraped := map[int]time.Time{1000: testNow.Add(-day)}
	records := Records([]int{1000, 1001}, scraped, testNow, false)
	if records[0].Synthetic || !records[0].SolvedAt.Equal(testNow.Add(-day)) {
		t.Fatalf("unexpected scraped record %+v", records[0])
	}
	if !records[1].Synthetic || !records[1].SolvedAt.Equal(testNow) {
		t.Fatalf("expected missing date to default to now, got %+v", records[1])
	}
	for _, r := range Records([]int{1000}, scraped, testNow, true) {
		if !r.Synthetic {
			t.Fatalf("expected synthetic records")
		}
	}
}
