package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestCtxAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	ctx := WithRunID(context.Background())
	id := RunID(ctx)
	if len(id) != 8 {
		t.Fatalf("expected 8-char run id, got %q", id)
	}
	Ctx(ctx).Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"run_id":"`+id+`"`) {
		t.Fatalf("expected run id in output, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "error", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	Ctx(context.Background()).Warn().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected warn to be filtered, got %q", buf.String())
	}
}
