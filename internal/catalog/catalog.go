// Package catalog describes the problem catalog and provides an HTTP client
// for the solved.ac v3 API.
package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/verte-zerg/solvefeed/internal/model"
)

// PageSize is the number of items the catalog returns per search page.
const PageSize = 50

// LookupBatchSize is the maximum number of IDs per lookup request.
const LookupBatchSize = 100

// ErrNotFound is returned for unknown handles or problems.
var ErrNotFound = errors.New("catalog: not found")

// Sort is a catalog search ordering.
type Sort string

// Supported sort orders.
const (
	SortID         Sort = "id"
	SortLevel      Sort = "level"
	SortSolved     Sort = "solved"
	SortAverageTry Sort = "average_try"
	SortRandom     Sort = "random"
)

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SearchParams filters a catalog search. Zero levels are unbounded.
type SearchParams struct {
	Query     string
	Tags      []string
	LevelMin  int
	LevelMax  int
	Page      int
	Sort      Sort
	Direction Direction
}

// QueryString renders the solved.ac query language for p.
func (p SearchParams) QueryString() string {
	terms := make([]string, 0, len(p.Tags)+2)
	if q := strings.TrimSpace(p.Query); q != "" {
		terms = append(terms, q)
	}
	switch {
	case p.LevelMin > 0 && p.LevelMax > 0:
		terms = append(terms, "tier:"+strconv.Itoa(p.LevelMin)+".."+strconv.Itoa(p.LevelMax))
	case p.LevelMin > 0:
		terms = append(terms, "tier:"+strconv.Itoa(p.LevelMin)+"..")
	case p.LevelMax > 0:
		terms = append(terms, "tier:.."+strconv.Itoa(p.LevelMax))
	}
	for _, tag := range p.Tags {
		terms = append(terms, "tag:"+tag)
	}
	return strings.Join(terms, " ")
}

// SearchResult is one page of search results plus the total match count.
type SearchResult struct {
	Items []model.SolvedProblem
	Count int
}

// Catalog is the problem search capability the engine consumes.
type Catalog interface {
	Search(ctx context.Context, p SearchParams) (SearchResult, error)
	FetchByIDs(ctx context.Context, ids []int) ([]model.SolvedProblem, error)
}

// Source adds the account and tag endpoints used by sync.
type Source interface {
	Catalog
	UserProfile(ctx context.Context, handle string) (model.Profile, error)
	SolvedProblemIDs(ctx context.Context, handle string, pacer Pacer) ([]int, error)
	ListTags(ctx context.Context, pacer Pacer) ([]model.TagRef, error)
}

// Pacer spaces out sequential catalog calls.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NoPacer never waits; it only reports cancellation.
type NoPacer struct{}

// Wait implements Pacer.
func (NoPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}

// RatePacer allows one call per interval.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer returns a pacer with the given minimum spacing. The first
// Wait returns immediately.
func NewRatePacer(interval time.Duration) *RatePacer {
	if interval <= 0 {
		return &RatePacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RatePacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait implements Pacer.
func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// FetchAll looks up ids in batches, pacing between batches.
func FetchAll(ctx context.Context, c Catalog, ids []int, pacer Pacer) ([]model.SolvedProblem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if pacer == nil {
		pacer = NoPacer{}
	}
	out := make([]model.SolvedProblem, 0, len(ids))
	for start := 0; start < len(ids); start += LookupBatchSize {
		if start > 0 {
			if err := pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}
		end := min(start+LookupBatchSize, len(ids))
		batch, err := c.FetchByIDs(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}
