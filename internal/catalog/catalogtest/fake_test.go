package catalogtest

import (
	"context"
	"errors"
	"testing"

	"github.com/verte-zerg/solvefeed/internal/catalog"
	"github.com/verte-zerg/solvefeed/internal/model"
)

func TestFakeSearchFiltersAndPages(t *testing.T) {
	tags := []model.TagRef{{Key: "dp", DisplayName: "다이나믹 프로그래밍"}, {Key: "greedy", DisplayName: "그리디 알고리즘"}}
	f := New(Generate(300, tags))

	res, err := f.Search(context.Background(), catalog.SearchParams{Tags: []string{"dp"}, LevelMin: 1, LevelMax: 30, Page: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Count != 150 || len(res.Items) != catalog.PageSize {
		t.Fatalf("unexpected count %d items %d", res.Count, len(res.Items))
	}
	for i := 1; i < len(res.Items); i++ {
		if res.Items[i].AcceptedUserCount > res.Items[i-1].AcceptedUserCount {
			t.Fatalf("expected solved desc ordering")
		}
	}

	res, err = f.Search(context.Background(), catalog.SearchParams{Page: 7})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Items) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(res.Items))
	}
	if len(f.Searches()) != 2 {
		t.Fatalf("expected 2 recorded searches, got %d", len(f.Searches()))
	}
}

func TestFakeFailureInjection(t *testing.T) {
	boom := errors.New("boom")
	f := New(Generate(10, nil))
	f.Fail = func(p catalog.SearchParams) error { return boom }
	if _, err := f.Search(context.Background(), catalog.SearchParams{}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}
