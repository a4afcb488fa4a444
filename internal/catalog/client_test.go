package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/verte-zerg/solvefeed/internal/metrics"
)

const searchBody = `{"count":2,"items":[
 {"problemId":1000,"titleKo":"A+B","acceptedUserCount":200000,"level":1,"averageTries":2.5,
  "tags":[{"key":"math","problemCount":6000,"displayNames":[{"language":"ko","name":"수학","short":"수학"},{"language":"en","name":"mathematics","short":"math"}]}]},
 {"problemId":1001,"titleKo":"A-B","acceptedUserCount":150000,"level":1,"averageTries":2.1,"tags":[]}
]}`

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	return NewClient(opts)
}

func TestSearchBuildsQueryAndDecodes(t *testing.T) {
	var gotQuery, gotSort, gotDir, gotPage string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/problem" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotSort = r.URL.Query().Get("sort")
		gotDir = r.URL.Query().Get("direction")
		gotPage = r.URL.Query().Get("page")
		_, _ = w.Write([]byte(searchBody))
	}, Options{})

	res, err := c.Search(context.Background(), SearchParams{Tags: []string{"math"}, LevelMin: 3, LevelMax: 7, Page: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "tier:3..7 tag:math" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotSort != "solved" || gotDir != "desc" || gotPage != "2" {
		t.Fatalf("unexpected sort/direction/page %q %q %q", gotSort, gotDir, gotPage)
	}
	if res.Count != 2 || len(res.Items) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	p := res.Items[0]
	if p.ProblemID != 1000 || p.Title != "A+B" || p.Level != 1 || p.AcceptedUserCount != 200000 {
		t.Fatalf("unexpected problem %+v", p)
	}
	if len(p.Tags) != 1 || p.Tags[0].Key != "math" || p.Tags[0].DisplayName != "수학" || p.Tags[0].ProblemCount != 6000 {
		t.Fatalf("unexpected tags %+v", p.Tags)
	}
}

func TestSearchLanguageFallsBackToKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	}, Options{Language: "ja"})
	res, err := c.Search(context.Background(), SearchParams{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got := res.Items[0].Tags[0].Name(); got != "math" {
		t.Fatalf("expected key fallback, got %q", got)
	}
}

func TestQueryStringOpenBounds(t *testing.T) {
	if got := (SearchParams{LevelMin: 5}).QueryString(); got != "tier:5.." {
		t.Fatalf("unexpected min-only query %q", got)
	}
	if got := (SearchParams{LevelMax: 9}).QueryString(); got != "tier:..9" {
		t.Fatalf("unexpected max-only query %q", got)
	}
	if got := (SearchParams{Query: "solved_by:foo"}).QueryString(); got != "solved_by:foo" {
		t.Fatalf("unexpected raw query %q", got)
	}
}

func TestSearchCachesRepeatedQueries(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(searchBody))
	}, Options{CacheSize: 8, CacheTTL: time.Minute})

	p := SearchParams{Tags: []string{"math"}, Page: 1}
	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), p); err != nil {
			t.Fatalf("search: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", hits.Load())
	}
	p.Sort = SortRandom
	for i := 0; i < 2; i++ {
		if _, err := c.Search(context.Background(), p); err != nil {
			t.Fatalf("search: %v", err)
		}
	}
	if hits.Load() != 3 {
		t.Fatalf("expected random sort to bypass cache, got %d calls", hits.Load())
	}
}

func TestRetriesOn429(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(searchBody))
	}, Options{})

	res, err := c.Search(context.Background(), SearchParams{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Items) != 2 || hits.Load() != 3 {
		t.Fatalf("expected success after 3 calls, got %d items after %d calls", len(res.Items), hits.Load())
	}
}

func TestNegativeMaxRetriesFailsFast(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}, Options{MaxRetries: -1})

	if _, err := c.Search(context.Background(), SearchParams{}); err == nil {
		t.Fatalf("expected rate limit error")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", hits.Load())
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, Options{})

	for i := 0; i < 10; i++ {
		if _, err := c.Search(context.Background(), SearchParams{Page: i + 1}); err == nil {
			t.Fatalf("expected failure on call %d", i+1)
		}
	}
	_, err := c.Search(context.Background(), SearchParams{Page: 99})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if hits.Load() != 10 {
		t.Fatalf("expected the open breaker to skip the server, got %d calls", hits.Load())
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues(breakerName)); got != 2 {
		t.Fatalf("expected open state gauge 2, got %v", got)
	}
}

func TestServerErrorIsReturned(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, Options{})

	_, err := c.Search(context.Background(), SearchParams{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("expected status error, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected no retry on 500, got %d calls", hits.Load())
	}
}

func TestUserProfileNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, Options{})
	_, err := c.UserProfile(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserProfileDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("handle") != "alice" {
			t.Errorf("unexpected handle %q", r.URL.Query().Get("handle"))
		}
		_, _ = w.Write([]byte(`{"handle":"alice","tier":13,"rating":1200,"solvedCount":321,"class":4}`))
	}, Options{})
	p, err := c.UserProfile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Handle != "alice" || p.Tier != 13 || p.SolvedCount != 321 || p.Class != 4 {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestSolvedProblemIDsPages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Query().Get("query"), "solved_by:alice") {
			t.Errorf("unexpected query %q", r.URL.Query().Get("query"))
		}
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"count":3,"items":[{"problemId":1},{"problemId":2}]}`))
		default:
			_, _ = w.Write([]byte(`{"count":3,"items":[{"problemId":3}]}`))
		}
	}, Options{})
	ids, err := c.SolvedProblemIDs(context.Background(), "alice", NoPacer{})
	if err != nil {
		t.Fatalf("solved ids: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestListTagsStopsOnShortPage(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"count":1,"items":[{"key":"dp","problemCount":900,"displayNames":[{"language":"ko","name":"다이나믹 프로그래밍"}]}]}`))
	}, Options{})
	tags, err := c.ListTags(context.Background(), NoPacer{})
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 1 || tags[0].Key != "dp" || tags[0].ProblemCount != 900 {
		t.Fatalf("unexpected tags %+v", tags)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single page, got %d", hits.Load())
	}
}

func TestFetchAllBatches(t *testing.T) {
	var batches atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		batches.Add(1)
		ids := strings.Split(r.URL.Query().Get("problemIds"), ",")
		var b strings.Builder
		b.WriteString("[")
		for i, id := range ids {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"problemId":` + id + `}`)
		}
		b.WriteString("]")
		_, _ = w.Write([]byte(b.String()))
	}, Options{})

	ids := make([]int, 250)
	for i := range ids {
		ids[i] = i + 1
	}
	got, err := FetchAll(context.Background(), c, ids, NoPacer{})
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(got) != 250 {
		t.Fatalf("expected 250 problems, got %d", len(got))
	}
	if batches.Load() != 3 {
		t.Fatalf("expected 3 batches, got %d", batches.Load())
	}
}

func TestRatePacerHonorsCancel(t *testing.T) {
	p := NewRatePacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first wait should pass: %v", err)
	}
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatalf("expected error on cancelled wait")
	}
}
