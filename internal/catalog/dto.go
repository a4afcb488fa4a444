package catalog

import "github.com/verte-zerg/solvefeed/internal/model"

type displayNameDTO struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	Short    string `json:"short"`
}

type tagDTO struct {
	Key          string           `json:"key"`
	ProblemCount int              `json:"problemCount"`
	DisplayNames []displayNameDTO `json:"displayNames"`
}

func (t tagDTO) toModel(lang string) model.TagRef {
	ref := model.TagRef{Key: t.Key, ProblemCount: t.ProblemCount}
	for _, dn := range t.DisplayNames {
		if dn.Language == lang && dn.Name != "" {
			ref.DisplayName = dn.Name
			break
		}
	}
	return ref
}

type titleDTO struct {
	Language string `json:"language"`
	Title    string `json:"title"`
}

type problemDTO struct {
	ProblemID         int        `json:"problemId"`
	TitleKo           string     `json:"titleKo"`
	Titles            []titleDTO `json:"titles"`
	AcceptedUserCount int        `json:"acceptedUserCount"`
	Level             int        `json:"level"`
	AverageTries      float64    `json:"averageTries"`
	Tags              []tagDTO   `json:"tags"`
}

func (p problemDTO) toModel(lang string) model.SolvedProblem {
	title := p.TitleKo
	for _, t := range p.Titles {
		if t.Language == lang && t.Title != "" {
			title = t.Title
			break
		}
	}
	if title == "" && len(p.Titles) > 0 {
		title = p.Titles[0].Title
	}
	tags := make([]model.TagRef, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.toModel(lang))
	}
	return model.SolvedProblem{
		ProblemID:         p.ProblemID,
		Title:             title,
		Level:             p.Level,
		Tags:              tags,
		AcceptedUserCount: p.AcceptedUserCount,
		AverageTries:      p.AverageTries,
	}
}

type searchResponse struct {
	Count int          `json:"count"`
	Items []problemDTO `json:"items"`
}

type tagListResponse struct {
	Count int      `json:"count"`
	Items []tagDTO `json:"items"`
}

type userDTO struct {
	Handle      string `json:"handle"`
	Tier        int    `json:"tier"`
	Rating      int    `json:"rating"`
	SolvedCount int    `json:"solvedCount"`
	Class       int    `json:"class"`
}
