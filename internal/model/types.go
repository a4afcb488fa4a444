// Package model defines shared data structures.
package model

import "time"

// Category is a recommendation bucket.
type Category string

// Recommendation categories, in display order.
const (
	CategoryWeakness   Category = "weakness"
	CategoryChallenge  Category = "challenge"
	CategoryReview     Category = "review"
	CategoryPopular    Category = "popular"
	CategoryFoundation Category = "foundation"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryWeakness,
	CategoryChallenge,
	CategoryReview,
	CategoryPopular,
	CategoryFoundation,
}

// ParseCategory validates a category name. Empty input returns "" and true.
func ParseCategory(s string) (Category, bool) {
	if s == "" {
		return "", true
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// TagRef is a tag attached to a catalog problem.
type TagRef struct {
	Key          string `json:"key"`
	DisplayName  string `json:"displayName"`
	ProblemCount int    `json:"problemCount"`
}

// Name returns the display name, falling back to the key.
func (t TagRef) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Key
}

// SolvedProblem is a catalog problem as returned by search or lookup.
type SolvedProblem struct {
	ProblemID         int      `json:"problemId"`
	Title             string   `json:"title"`
	Level             int      `json:"level"`
	Tags              []TagRef `json:"tags"`
	AcceptedUserCount int      `json:"acceptedUserCount"`
	AverageTries      float64  `json:"averageTries"`
}

// TagNames returns the display names of the problem's tags.
func (p SolvedProblem) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name())
	}
	return names
}

// SolveRecord is the first accepted submission time for a problem.
// Synthetic records come from the problem-ID ordering proxy.
type SolveRecord struct {
	ProblemID int
	SolvedAt  time.Time
	Synthetic bool
}

// Profile is the judge-side profile of a handle.
type Profile struct {
	Handle      string
	Tier        int
	Rating      int
	SolvedCount int
	Class       int
	FetchedAt   time.Time
}

// RecentCounts counts solves inside trailing windows.
type RecentCounts struct {
	Days30 int `json:"days30"`
	Days60 int `json:"days60"`
	Days90 int `json:"days90"`
}

// TagAnalysis aggregates one user's solves for one tag.
type TagAnalysis struct {
	Tag                string       `json:"tag"`
	Key                string       `json:"key"`
	SolvedCount        int          `json:"solvedCount"`
	AvgLevel           float64      `json:"avgLevel"`
	MaxLevel           int          `json:"maxLevel"`
	LevelDistribution  map[int]int  `json:"levelDistribution"`
	TotalProblemsInTag int          `json:"totalProblemsInTag"`
	LastSolvedAt       *time.Time   `json:"lastSolvedAt,omitempty"`
	RecentCounts       RecentCounts `json:"recentCounts"`
}

// WeaknessDetails holds the five weakness sub-scores.
type WeaknessDetails struct {
	Coverage    float64 `json:"coverageScore"`
	LevelGap    float64 `json:"levelGapScore"`
	Recency     float64 `json:"recencyScore"`
	Ceiling     float64 `json:"ceilingScore"`
	Consistency float64 `json:"consistencyScore"`
}

// WeaknessScore is the composite weakness of a tag. Higher is weaker.
type WeaknessScore struct {
	Tag        string          `json:"tag"`
	TotalScore float64         `json:"totalScore"`
	Details    WeaknessDetails `json:"details"`
	Analysis   TagAnalysis     `json:"analysis"`
}

// TagExpectation describes how many solves a tag should have.
type TagExpectation struct {
	Tag            string  `json:"tag"`
	ProblemCount   int     `json:"problemCount"`
	BaseCount      int     `json:"baseCount"`
	TierMultiplier float64 `json:"tierMultiplier"`
}

// ScoreBreakdown explains a recommendation score.
type ScoreBreakdown struct {
	TagWeakness    float64 `json:"tagWeakness"`
	LevelFitness   float64 `json:"levelFitness"`
	StepProgress   float64 `json:"stepProgress"`
	ProblemQuality float64 `json:"problemQuality"`
	Diversity      float64 `json:"diversity"`
}

// RecommendationItem is one recommended problem.
type RecommendationItem struct {
	ProblemID      int            `json:"problemId"`
	Score          float64        `json:"score"`
	Category       Category       `json:"category"`
	Priority       int            `json:"priority"`
	Reasons        []string       `json:"reasons"`
	Tags           []string       `json:"tags"`
	Level          int            `json:"level"`
	StepLevel      *int           `json:"stepLevel,omitempty"`
	ScoreBreakdown ScoreBreakdown `json:"scoreBreakdown"`
}

// Criteria records the inputs a snapshot was generated from.
type Criteria struct {
	UserTier      int      `json:"userTier"`
	UserAvgLevel  int      `json:"userAvgLevel"`
	LevelMin      int      `json:"levelMin"`
	LevelMax      int      `json:"levelMax"`
	WeakTags      []string `json:"weakTags"`
	ExcludeSolved bool     `json:"excludeSolved"`
}

// FeedStats summarizes a recommendation list.
type FeedStats struct {
	TotalCount  int              `json:"totalCount"`
	ByCategory  map[Category]int `json:"byCategory"`
	AvgScore    float64          `json:"avgScore"`
	TagCoverage []string         `json:"tagCoverage"`
}

// Snapshot is one generated recommendation feed.
type Snapshot struct {
	ID          string               `json:"id"`
	UserID      string               `json:"userId"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Criteria    Criteria             `json:"criteria"`
	Items       []RecommendationItem `json:"items"`
	Stats       FeedStats            `json:"stats"`
}

// TagStatRow is a persisted weakness score for one tag at one sync.
type TagStatRow struct {
	Handle     string
	SnapshotAt time.Time
	Score      WeaknessScore
}

// TagScorePoint is one weakness observation in a tag's history.
type TagScorePoint struct {
	SnapshotAt time.Time
	Score      float64
}

// SyncStatus is the lifecycle state of a sync job.
type SyncStatus string

// Sync job states.
const (
	SyncPending SyncStatus = "PENDING"
	SyncRunning SyncStatus = "RUNNING"
	SyncSuccess SyncStatus = "SUCCESS"
	SyncFailed  SyncStatus = "FAILED"
)

// SyncJob tracks one sync run.
type SyncJob struct {
	ID        int64
	Handle    string
	Status    SyncStatus
	Progress  int
	Message   string
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
}

// SnapshotSummary is a listing row for stored snapshots.
type SnapshotSummary struct {
	ID          string
	GeneratedAt time.Time
	TotalCount  int
	AvgScore    float64
}
