// Package solvehistory recovers when problems were first solved, by scraping
// the judge's public status page or, failing that, by a problem-ID proxy.
package solvehistory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/model"
)

// Defaults for the judge status page.
const (
	DefaultBaseURL  = "https://www.acmicpc.net"
	DefaultMaxPages = 20
	DefaultInterval = 800 * time.Millisecond
	rowsPerPage     = 20
	acceptedResult  = 4
	userAgent       = "Mozilla/5.0 (compatible; solvefeed/1.0)"
)

const day = 24 * time.Hour

var (
	problemLinkRe = regexp.MustCompile(`/problem/(\d+)`)
	minutesAgoRe  = regexp.MustCompile(`(\d+)\s*분\s*전`)
	hoursAgoRe    = regexp.MustCompile(`(\d+)\s*시간\s*전`)
	daysAgoRe     = regexp.MustCompile(`(\d+)\s*일\s*전`)
)

// judgeZone is the judge's wall clock for absolute timestamps.
var judgeZone = time.FixedZone("KST", 9*60*60)

// Options configures a Scraper. Zero fields take defaults; a negative
// Interval disables pacing.
type Options struct {
	BaseURL    string
	MaxPages   int
	Interval   time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Scraper reads accepted submissions from the judge status page.
type Scraper struct {
	baseURL  string
	maxPages int
	pacer    catalog.Pacer
	client   *http.Client
	now      func() time.Time
}

// NewScraper returns a Scraper.
func NewScraper(opts Options) *Scraper {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Scraper{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		maxPages: opts.MaxPages,
		pacer:    catalog.NewRatePacer(opts.Interval),
		client:   client,
		now:      time.Now,
	}
}

// SolveDates returns the earliest accepted submission time per problem.
// A page that cannot be fetched or parsed fails the whole scrape.
func (s *Scraper) SolveDates(ctx context.Context, handle string) (map[int]time.Time, error) {
	first := map[int]time.Time{}
	for page := 1; page <= s.maxPages; page++ {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		doc, err := s.fetch(ctx, handle, page)
		if err != nil {
			return nil, err
		}
		rows := doc.Find("table#status-table tbody tr")
		rows.Each(func(_ int, row *goquery.Selection) {
			id, at, ok := s.parseRow(row)
			if !ok {
				return
			}
			if prev, seen := first[id]; !seen || at.Before(prev) {
				first[id] = at
			}
		})
		if rows.Length() < rowsPerPage {
			break
		}
	}
	logging.Ctx(ctx).Debug().Str("handle", handle).Int("problems", len(first)).Msg("solve dates scraped")
	return first, nil
}

func (s *Scraper) fetch(ctx context.Context, handle string, page int) (*goquery.Document, error) {
	q := url.Values{}
	q.Set("user_id", handle)
	q.Set("result_id", strconv.Itoa(acceptedResult))
	q.Set("page", strconv.Itoa(page))
	target := s.baseURL + "/status?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status page %d: unexpected status %d", page, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse status page %d: %w", page, err)
	}
	return doc, nil
}

func (s *Scraper) parseRow(row *goquery.Selection) (int, time.Time, bool) {
	href, ok := row.Find("td:nth-child(3) a").Attr("href")
	if !ok {
		return 0, time.Time{}, false
	}
	m := problemLinkRe.FindStringSubmatch(href)
	if m == nil {
		return 0, time.Time{}, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, time.Time{}, false
	}
	cell := row.Find("td:nth-child(9)")
	stamp, ok := cell.Find("a").Attr("title")
	if !ok {
		stamp = cell.Text()
	}
	at, ok := parseSubmittedAt(stamp, s.now())
	if !ok {
		return 0, time.Time{}, false
	}
	return id, at, true
}

// parseSubmittedAt accepts "2006-01-02 15:04:05" in judge time and relative
// Korean forms such as "5분 전", "3시간 전" and "2일 전".
func parseSubmittedAt(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, judgeZone); err == nil {
		return t, true
	}
	relative := []struct {
		re   *regexp.Regexp
		unit time.Duration
	}{
		{minutesAgoRe, time.Minute},
		{hoursAgoRe, time.Hour},
		{daysAgoRe, day},
	}
	for _, r := range relative {
		if m := r.re.FindStringSubmatch(raw); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			return now.Add(-time.Duration(n) * r.unit), true
		}
	}
	return time.Time{}, false
}

// SyntheticDates orders ids ascending and dates the largest at now and each
// earlier one a day before the next. Records are marked synthetic.
func SyntheticDates(ids []int, now time.Time) map[int]time.Time {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	out := make(map[int]time.Time, len(sorted))
	for i, id := range sorted {
		out[id] = now.Add(-time.Duration(len(sorted)-1-i) * day)
	}
	return out
}

// Records builds solve records for ids. Problems without a scraped date are
// dated now. synthetic marks every record as coming from the ID proxy.
func Records(ids []int, dates map[int]time.Time, now time.Time, synthetic bool) []model.SolveRecord {
	out := make([]model.SolveRecord, 0, len(ids))
	for _, id := range ids {
		at, ok := dates[id]
		if !ok {
			at = now
		}
		out = append(out, model.SolveRecord{ProblemID: id, SolvedAt: at, Synthetic: synthetic || !ok})
	}
	return out
}
