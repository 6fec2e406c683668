package reaction

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMatch_DefaultRule(t *testing.T) {
	got := Match(DefaultRules(), "I believe in StalWeidism now")
	if len(got) != 2 {
		t.Fatalf("expected 2 emojis, got %d", len(got))
	}
	if got[0].APIName() != "doy:767402279539441684" || got[1].APIName() != "FGuOoDoY:848665642713874472" {
		t.Errorf("unexpected order: %+v", got)
	}

	if got := Match(DefaultRules(), "nothing to see"); len(got) != 0 {
		t.Errorf("expected no match, got %+v", got)
	}
}

func TestEmoji_APIName(t *testing.T) {
	if (Emoji{Name: "👍"}).APIName() != "👍" {
		t.Error("unicode emoji should be sent as-is")
	}
}

func TestLoadRules_Defaults(t *testing.T) {
	rules, err := LoadRules("", testLogger())
	if err != nil || len(rules) != 1 {
		t.Fatalf("got %v, %v", rules, err)
	}

	rules, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"), testLogger())
	if err != nil || len(rules) != 1 || rules[0].Keyword != "stalweidism" {
		t.Fatalf("missing file should fall back to defaults, got %v, %v", rules, err)
	}
}

func TestLoadRules_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactions.yaml")
	data := `rules:
  - keyword: " Gopher "
    emojis:
      - name: "🐹"
  - keyword: nothing
    emojis: []
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 1 || rules[0].Keyword != "gopher" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
	if got := Match(rules, "a GOPHER appears"); len(got) != 1 || got[0].Name != "🐹" {
		t.Errorf("unexpected match: %+v", got)
	}
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("rules: [\n"), 0o644)
	if _, err := LoadRules(bad, testLogger()); err == nil {
		t.Error("expected parse error")
	}

	empty := filepath.Join(dir, "empty-keyword.yaml")
	os.WriteFile(empty, []byte("rules:\n  - keyword: \"\"\n    emojis:\n      - name: x\n"), 0o644)
	if _, err := LoadRules(empty, testLogger()); err == nil {
		t.Error("expected empty keyword error")
	}
}
