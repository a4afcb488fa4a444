package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/metrics"
	"github.com/verte-zerg/solvefeed/internal/model"
)

// DefaultBaseURL is the public solved.ac API root.
const DefaultBaseURL = "https://solved.ac/api/v3"

const breakerName = "catalog"

// Options configures Client. Zero values fall back to defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Language  string
	CacheSize int
	CacheTTL  time.Duration
	// MaxRetries bounds HTTP 429 retries. Negative disables them.
	MaxRetries int
	BaseDelay  time.Duration
	HTTPClient *http.Client
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: unexpected status %d from %s", e.Code, e.URL)
}

// Client talks to the solved.ac API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	lang       string
	http       *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte]
	cache      *expirable.LRU[string, SearchResult]
	maxRetries int
	baseDelay  time.Duration
}

// NewClient builds a Client from opts.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Language == "" {
		opts.Language = "ko"
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = 5
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		lang:       opts.Language,
		http:       httpClient,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
	}
	if opts.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, SearchResult](opts.CacheSize, nil, opts.CacheTTL)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger := logging.Logger()
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("catalog circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return c
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Search implements Catalog. Non-random searches are cached when a cache is configured.
func (c *Client) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	q := url.Values{}
	q.Set("query", p.QueryString())
	q.Set("page", strconv.Itoa(max(p.Page, 1)))
	sort := p.Sort
	if sort == "" {
		sort = SortSolved
	}
	dir := p.Direction
	if dir == "" {
		dir = Desc
	}
	q.Set("sort", string(sort))
	q.Set("direction", string(dir))

	key := q.Encode()
	cacheable := c.cache != nil && sort != SortRandom
	if cacheable {
		if res, ok := c.cache.Get(key); ok {
			metrics.CatalogCacheHits.Inc()
			return res, nil
		}
	}

	body, err := c.get(ctx, "search", "/search/problem", q)
	if err != nil {
		return SearchResult{}, err
	}
	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return SearchResult{}, fmt.Errorf("failed to decode search response: %w", err)
	}
	res := SearchResult{Count: payload.Count, Items: make([]model.SolvedProblem, 0, len(payload.Items))}
	for _, item := range payload.Items {
		res.Items = append(res.Items, item.toModel(c.lang))
	}
	if cacheable {
		c.cache.Add(key, res)
	}
	return res, nil
}

// FetchByIDs implements Catalog with a single lookup request. Use FetchAll
// for more than LookupBatchSize ids.
func (c *Client) FetchByIDs(ctx context.Context, ids []int) ([]model.SolvedProblem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	q := url.Values{}
	q.Set("problemIds", strings.Join(parts, ","))
	body, err := c.get(ctx, "lookup", "/problem/lookup", q)
	if err != nil {
		return nil, err
	}
	var payload []problemDTO
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	out := make([]model.SolvedProblem, 0, len(payload))
	for _, item := range payload {
		out = append(out, item.toModel(c.lang))
	}
	return out, nil
}

// UserProfile fetches a handle's profile. Unknown handles return ErrNotFound.
func (c *Client) UserProfile(ctx context.Context, handle string) (model.Profile, error) {
	q := url.Values{}
	q.Set("handle", handle)
	body, err := c.get(ctx, "user", "/user/show", q)
	if err != nil {
		return model.Profile{}, err
	}
	var payload userDTO
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Profile{}, fmt.Errorf("failed to decode user response: %w", err)
	}
	return model.Profile{
		Handle:      payload.Handle,
		Tier:        payload.Tier,
		Rating:      payload.Rating,
		SolvedCount: payload.SolvedCount,
		Class:       payload.Class,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// SolvedProblemIDs pages through every problem solved by handle in ascending ID order.
func (c *Client) SolvedProblemIDs(ctx context.Context, handle string, pacer Pacer) ([]int, error) {
	if pacer == nil {
		pacer = NoPacer{}
	}
	var ids []int
	for page := 1; ; page++ {
		if page > 1 {
			if err := pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}
		res, err := c.Search(ctx, SearchParams{
			Query:     "solved_by:" + handle,
			Page:      page,
			Sort:      SortID,
			Direction: Asc,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list solved problems: %w", err)
		}
		for _, p := range res.Items {
			ids = append(ids, p.ProblemID)
		}
		if len(ids) >= res.Count || len(res.Items) == 0 {
			return ids, nil
		}
	}
}

// ListTags pages through the tag list until a short page.
func (c *Client) ListTags(ctx context.Context, pacer Pacer) ([]model.TagRef, error) {
	if pacer == nil {
		pacer = NoPacer{}
	}
	var tags []model.TagRef
	for page := 1; ; page++ {
		if page > 1 {
			if err := pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		body, err := c.get(ctx, "tags", "/tag/list", q)
		if err != nil {
			return nil, fmt.Errorf("failed to list tags: %w", err)
		}
		var payload tagListResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode tag list: %w", err)
		}
		for _, t := range payload.Items {
			tags = append(tags, t.toModel(c.lang))
		}
		if len(payload.Items) < PageSize {
			return tags, nil
		}
	}
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.do(ctx, c.baseURL+path+"?"+q.Encode())
	})
	metrics.CatalogRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.CatalogRequests.WithLabelValues(op, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CatalogRequests.WithLabelValues(op, "rejected").Inc()
	default:
		metrics.CatalogRequests.WithLabelValues(op, "failure").Inc()
	}
	return body, err
}

// do performs a GET, retrying only on HTTP 429 with exponential backoff.
func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			closeBody(resp)
			metrics.CatalogRateLimited.Inc()
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("catalog: rate limit exceeded after %d retries", c.maxRetries)
			}
			delay := c.baseDelay * time.Duration(1<<attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
					delay = time.Duration(secs) * time.Second
				}
			}
			logging.Ctx(ctx).Warn().Dur("retry_delay", delay).Int("attempt", attempt+1).Msg("catalog rate limited")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		closeBody(resp)
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return body, nil
	}
}

func closeBody(resp *http.Response) {
	if cerr := resp.Body.Close(); cerr != nil {
		// Best-effort body close.
		_ = cerr
	}
}
