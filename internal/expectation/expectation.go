// Package expectation supplies per-tag expected solve counts.
package expectation

import (
	"context"
	"math"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/logging"
	"github.com/verte-zerg/solvefeed/internal/model"
)

// Source yields tag expectations keyed by tag display name. A nil map means
// the scorer's built-in formula applies to every tag.
type Source interface {
	Expectations(ctx context.Context) (map[string]model.TagExpectation, error)
}

// Static returns a fixed table.
type Static struct {
	Table map[string]model.TagExpectation
}

// Expectations implements Source.
func (s Static) Expectations(context.Context) (map[string]model.TagExpectation, error) {
	return s.Table, nil
}

// TagLister lists every catalog tag.
type TagLister interface {
	ListTags(ctx context.Context, pacer catalog.Pacer) ([]model.TagRef, error)
}

// Catalog derives expectations from catalog tag sizes.
type Catalog struct {
	tags  TagLister
	pacer catalog.Pacer
}

// NewCatalog returns a Source backed by the catalog tag list.
func NewCatalog(tags TagLister, pacer catalog.Pacer) *Catalog {
	if pacer == nil {
		pacer = catalog.NoPacer{}
	}
	return &Catalog{tags: tags, pacer: pacer}
}

// Expectations implements Source.
func (c *Catalog) Expectations(ctx context.Context) (map[string]model.TagExpectation, error) {
	tags, err := c.tags.ListTags(ctx, c.pacer)
	if err != nil {
		return nil, err
	}
	return FromTags(tags), nil
}

// FromTags computes expectations from tag problem counts. Tags without a
// count use the mean count, or 100 when no tag has one.
func FromTags(tags []model.TagRef) map[string]model.TagExpectation {
	if len(tags) == 0 {
		return nil
	}
	total := 0
	for _, t := range tags {
		total += t.ProblemCount
	}
	mean := 100.0
	if total > 0 {
		mean = float64(total) / float64(len(tags))
	}

	out := make(map[string]model.TagExpectation, len(tags))
	for _, t := range tags {
		count := float64(t.ProblemCount)
		if t.ProblemCount <= 0 {
			count = mean
		}
		multiplier := 1.2
		switch {
		case count > 500:
			multiplier = 1.5
		case count > 200:
			multiplier = 1.3
		}
		name := t.Name()
		out[name] = model.TagExpectation{
			Tag:            name,
			ProblemCount:   int(math.Round(count)),
			BaseCount:      int(math.Min(50, math.Max(10, math.Round(count*0.02)))),
			TierMultiplier: multiplier,
		}
	}
	return out
}

type selected struct {
	dynamic  Source
	fallback Source
}

// Select returns a Source that tries dynamic first and falls back on error.
func Select(dynamic, fallback Source) Source {
	return selected{dynamic: dynamic, fallback: fallback}
}

func (s selected) Expectations(ctx context.Context) (map[string]model.TagExpectation, error) {
	table, err := s.dynamic.Expectations(ctx)
	if err == nil {
		return table, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	logging.Ctx(ctx).Warn().Err(err).Msg("tag expectations unavailable, using fallback")
	return s.fallback.Expectations(ctx)
}
