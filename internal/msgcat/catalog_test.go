package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMessages(t *testing.T) {
	c := Default()
	cases := map[string]string{
		"move.turn_violation": "It's not your turn!",
		"join.not_found":      "Game not found",
		"join.full":           "Game is full",
	}
	for key, want := range cases {
		got, err := c.Render(key, nil)
		if err != nil || got != want {
			t.Fatalf("%s: got %q, %v", key, got, err)
		}
	}
	got, err := c.Render("move.illegal", map[string]any{"From": "e2", "To": "e5"})
	if err != nil || got != "e2 to e5 is not a legal move." {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestRenderMissing(t *testing.T) {
	c := Default()
	if _, err := c.Render("nope.nope", nil); err == nil {
		t.Fatalf("expected missing template error")
	}
	if _, err := c.Render("move.illegal", map[string]any{"From": "e2"}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if got := c.Text("nope.nope", nil, "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("join:\n  full: \"Seat taken\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := c.Render("join.full", nil); got != "Seat taken" {
		t.Fatalf("override not applied: %q", got)
	}
	if got, _ := c.Render("join.not_found", nil); got != "Game not found" {
		t.Fatalf("embedded value lost: %q", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("join:\n  full: \"Again\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
