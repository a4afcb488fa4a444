package stats

import (
	"time"

	"github.com/verte-zerg/solvefeed/internal/model"
)

const day = 24 * time.Hour

// AnalyzeTags aggregates solved problems per tag. Problems missing from
// solvedAt count as solved at now.
func AnalyzeTags(problems []model.SolvedProblem, solvedAt map[int]time.Time, now time.Time) map[string]model.TagAnalysis {
	cut30 := now.Add(-30 * day)
	cut60 := now.Add(-60 * day)
	cut90 := now.Add(-90 * day)

	byTag := map[string]*model.TagAnalysis{}
	for _, p := range problems {
		at, ok := solvedAt[p.ProblemID]
		if !ok {
			at = now
		}
		for _, ref := range p.Tags {
			name := ref.Name()
			a, ok := byTag[name]
			if !ok {
				a = &model.TagAnalysis{
					Tag:                name,
					Key:                ref.Key,
					LevelDistribution:  map[int]int{},
					TotalProblemsInTag: ref.ProblemCount,
				}
				byTag[name] = a
			}
			a.SolvedCount++
			a.LevelDistribution[p.Level]++
			if p.Level > a.MaxLevel {
				a.MaxLevel = p.Level
			}
			if a.LastSolvedAt == nil || at.After(*a.LastSolvedAt) {
				t := at
				a.LastSolvedAt = &t
			}
			if !at.Before(cut30) {
				a.RecentCounts.Days30++
			}
			if !at.Before(cut60) {
				a.RecentCounts.Days60++
			}
			if !at.Before(cut90) {
				a.RecentCounts.Days90++
			}
		}
	}

	out := make(map[string]model.TagAnalysis, len(byTag))
	for name, a := range byTag {
		total, count := 0, 0
		for level, n := range a.LevelDistribution {
			total += level * n
			count += n
		}
		if count > 0 {
			a.AvgLevel = float64(total) / float64(count)
		}
		out[name] = *a
	}
	return out
}

// SolvedAtMap indexes solve records by problem ID.
func SolvedAtMap(records []model.SolveRecord) map[int]time.Time {
	out := make(map[int]time.Time, len(records))
	for _, r := range records {
		out[r.ProblemID] = r.SolvedAt
	}
	return out
}
