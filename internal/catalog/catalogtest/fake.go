// Package catalogtest provides an in-memory catalog for tests.
package catalogtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/model"
)

// Fake is an in-memory catalog.Source. The zero value is empty and usable.
type Fake struct {
	Problems []model.SolvedProblem
	Profiles map[string]model.Profile
	Solved   map[string][]int
	Tags     []model.TagRef

	// Fail, when set, is consulted before every search.
	Fail func(p catalog.SearchParams) error

	mu       sync.Mutex
	searches []catalog.SearchParams
}

// New returns a Fake serving problems.
func New(problems []model.SolvedProblem) *Fake {
	return &Fake{Problems: problems}
}

// Generate builds n distinct problems with IDs from 1000. Levels cycle 1..30
// and tags cycle through tags, one tag per problem.
func Generate(n int, tags []model.TagRef) []model.SolvedProblem {
	out := make([]model.SolvedProblem, n)
	for i := 0; i < n; i++ {
		p := model.SolvedProblem{
			ProblemID:         1000 + i,
			Title:             fmt.Sprintf("problem %d", 1000+i),
			Level:             i%30 + 1,
			AcceptedUserCount: (n - i) * 100,
			AverageTries:      1.5 + float64(i%5)*0.5,
		}
		if len(tags) > 0 {
			p.Tags = []model.TagRef{tags[i%len(tags)]}
		}
		out[i] = p
	}
	return out
}

// Searches returns the search calls seen so far.
func (f *Fake) Searches() []catalog.SearchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]catalog.SearchParams, len(f.searches))
	copy(out, f.searches)
	return out
}

// Search implements catalog.Catalog.
func (f *Fake) Search(ctx context.Context, p catalog.SearchParams) (catalog.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return catalog.SearchResult{}, err
	}
	f.mu.Lock()
	f.searches = append(f.searches, p)
	f.mu.Unlock()
	if f.Fail != nil {
		if err := f.Fail(p); err != nil {
			return catalog.SearchResult{}, err
		}
	}

	var solvedBy map[int]bool
	if handle, ok := strings.CutPrefix(p.Query, "solved_by:"); ok {
		solvedBy = map[int]bool{}
		for _, id := range f.Solved[handle] {
			solvedBy[id] = true
		}
	}

	var matches []model.SolvedProblem
	for _, prob := range f.Problems {
		if solvedBy != nil && !solvedBy[prob.ProblemID] {
			continue
		}
		if p.LevelMin > 0 && prob.Level < p.LevelMin {
			continue
		}
		if p.LevelMax > 0 && prob.Level > p.LevelMax {
			continue
		}
		if !hasAllTags(prob, p.Tags) {
			continue
		}
		matches = append(matches, prob)
	}
	sortProblems(matches, p.Sort, p.Direction)

	page := max(p.Page, 1)
	start := (page - 1) * catalog.PageSize
	res := catalog.SearchResult{Count: len(matches)}
	if start >= len(matches) {
		return res, nil
	}
	end := min(start+catalog.PageSize, len(matches))
	res.Items = append([]model.SolvedProblem(nil), matches[start:end]...)
	return res, nil
}

// FetchByIDs implements catalog.Catalog. Unknown IDs are skipped.
func (f *Fake) FetchByIDs(ctx context.Context, ids []int) ([]model.SolvedProblem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	byID := make(map[int]model.SolvedProblem, len(f.Problems))
	for _, p := range f.Problems {
		byID[p.ProblemID] = p
	}
	out := make([]model.SolvedProblem, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// UserProfile implements catalog.Source.
func (f *Fake) UserProfile(ctx context.Context, handle string) (model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return model.Profile{}, err
	}
	p, ok := f.Profiles[handle]
	if !ok {
		return model.Profile{}, catalog.ErrNotFound
	}
	return p, nil
}

// SolvedProblemIDs implements catalog.Source.
func (f *Fake) SolvedProblemIDs(ctx context.Context, handle string, _ catalog.Pacer) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := append([]int(nil), f.Solved[handle]...)
	sort.Ints(ids)
	return ids, nil
}

// ListTags implements catalog.Source.
func (f *Fake) ListTags(ctx context.Context, _ catalog.Pacer) ([]model.TagRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]model.TagRef(nil), f.Tags...), nil
}

func hasAllTags(p model.SolvedProblem, keys []string) bool {
	for _, key := range keys {
		found := false
		for _, t := range p.Tags {
			if t.Key == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortProblems(ps []model.SolvedProblem, s catalog.Sort, dir catalog.Direction) {
	if s == "" {
		s = catalog.SortSolved
	}
	if dir == "" {
		dir = catalog.Desc
	}
	less := func(a, b model.SolvedProblem) bool {
		switch s {
		case catalog.SortLevel:
			if a.Level != b.Level {
				return a.Level < b.Level
			}
		case catalog.SortSolved:
			if a.AcceptedUserCount != b.AcceptedUserCount {
				return a.AcceptedUserCount < b.AcceptedUserCount
			}
		case catalog.SortAverageTry:
			if a.AverageTries != b.AverageTries {
				return a.AverageTries < b.AverageTries
			}
		}
		return a.ProblemID < b.ProblemID
	}
	sort.SliceStable(ps, func(i, j int) bool {
		if dir == catalog.Desc {
			return less(ps[j], ps[i])
		}
		return less(ps[i], ps[j])
	})
}
