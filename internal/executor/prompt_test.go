package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildSystemPromptWithMemory(t *testing.T) {
	got := BuildSystemPrompt("last run found 3 flaky tests")
	if !strings.Contains(got, "running unattended") {
		t.Error("addendum missing from system prompt")
	}
	if !strings.Contains(got, "last run found 3 flaky tests") {
		t.Error("memory missing from system prompt")
	}
	if BuildSystemPrompt("") != systemAddendum {
		t.Error("empty memory should yield the bare addendum")
	}
}

func TestReadMemory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "nightly-triage.md"), []byte("remember this"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := ReadMemory(dir, "nightly-triage"); got != "remember this" {
		t.Errorf("got %q", got)
	}
	if got := ReadMemory(dir, "no-such-automation"); got != "" {
		t.Errorf("missing file: got %q, want empty", got)
	}
	if got := ReadMemory("", "nightly-triage"); got != "" {
		t.Errorf("no memory dir: got %q, want empty", got)
	}
}

func TestTruncateSummary(t *testing.T) {
	short := "all good"
	if got := TruncateSummary(short); got != short {
		t.Errorf("short summary modified: %q", got)
	}

	long := strings.Repeat("ä", summaryCap+100)
	got := TruncateSummary(long)
	if n := utf8.RuneCountInString(got); n != summaryCap+1 { // cap plus ellipsis
		t.Errorf("got %d runes, want %d", n, summaryCap+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("truncated summary missing ellipsis")
	}
}

func TestParseActionable(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"explicit no", "Checked the queue.\nActionable: no", false},
		{"explicit yes", "Found two stale PRs.\nActionable: yes", true},
		{"case and padding", "done\n  ACTIONABLE:  NO  ", false},
		{"false synonym", "done\nactionable: false", false},
		{"trailing blank lines", "done\nActionable: no\n\n", false},
		{"marker absent", "just some output", true},
		{"malformed value", "done\nActionable: maybe", true},
		{"empty text", "", true},
		{"marker not last", "Actionable: no\nmore output after", true},
	}
	for _, tt := range tests {
		if got := ParseActionable(tt.text); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWorktreeAndBranchNames(t *testing.T) {
	if got := WorktreeName("nightly", 1700000000); got != "automation-nightly-1700000000" {
		t.Errorf("got %q", got)
	}
	if got := BranchName("nightly"); got != "automation/nightly" {
		t.Errorf("got %q", got)
	}
}
