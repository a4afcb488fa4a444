package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWriteTextfile(t *testing.T) {
	RecommendationItems.WithLabelValues("weakness").Add(3)
	if got := testutil.ToFloat64(RecommendationItems.WithLabelValues("weakness")); got < 3 {
		t.Fatalf("expected counter >= 3, got %v", got)
	}

	path := filepath.Join(t.TempDir(), "solvefeed.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "solvefeed_recommendation_items_total") {
		t.Fatalf("expected recommendation counter in output")
	}
}
