package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentdeck/autopilot/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Nightly Triage", "nightly-triage"},
		{"  CI -- Watchdog!  ", "ci-watchdog"},
		{"Überwachung", "berwachung"},
		{"---", "automation"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := newTestRegistry(t)

	auto := &domain.Automation{
		Name:   "Nightly Triage",
		Prompt: "Triage open issues.\n\nClose stale ones.",
		Schedule: domain.Schedule{
			RRule:    "FREQ=DAILY;BYHOUR=2",
			Timezone: "Europe/Berlin",
		},
		Workspaces: []string{"/work/repo"},
		Policy: domain.ExecutionPolicy{
			Retries:          2,
			UseWorktree:      true,
			PermissionPreset: domain.PresetReadOnly,
		},
	}
	if err := reg.Create(auto); err != nil {
		t.Fatal(err)
	}
	if auto.ID != "nightly-triage" {
		t.Errorf("ID = %q, want nightly-triage", auto.ID)
	}

	got, err := reg.Get("nightly-triage")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Nightly Triage" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Prompt != "Triage open issues.\n\nClose stale ones." {
		t.Errorf("Prompt = %q", got.Prompt)
	}
	if got.Schedule.RRule != "FREQ=DAILY;BYHOUR=2" || got.Schedule.Timezone != "Europe/Berlin" {
		t.Errorf("Schedule = %+v", got.Schedule)
	}
	if got.Policy.Retries != 2 || !got.Policy.UseWorktree {
		t.Errorf("Policy = %+v", got.Policy)
	}
	if got.Status != domain.AutomationActive {
		t.Errorf("Status = %q, want active default", got.Status)
	}
}

func TestRegistry_CreateCollisionGetsSuffix(t *testing.T) {
	reg := newTestRegistry(t)

	a := &domain.Automation{Name: "Daily", Prompt: "a", Schedule: domain.Schedule{RRule: "FREQ=DAILY"}}
	b := &domain.Automation{Name: "Daily", Prompt: "b", Schedule: domain.Schedule{RRule: "FREQ=DAILY"}}
	if err := reg.Create(a); err != nil {
		t.Fatal(err)
	}
	if err := reg.Create(b); err != nil {
		t.Fatal(err)
	}
	if a.ID != "daily" || b.ID != "daily-2" {
		t.Errorf("ids = %q, %q", a.ID, b.ID)
	}
}

func TestRegistry_ListExcludesArchived(t *testing.T) {
	reg := newTestRegistry(t)

	for _, name := range []string{"One", "Two", "Three"} {
		auto := &domain.Automation{Name: name, Prompt: "p", Schedule: domain.Schedule{RRule: "FREQ=DAILY"}}
		if err := reg.Create(auto); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.SetStatus("two", domain.AutomationArchived); err != nil {
		t.Fatal(err)
	}

	active, err := reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	for _, a := range active {
		if a.ID == "two" {
			t.Error("archived automation in List output")
		}
	}

	all, err := reg.ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all count = %d, want 3", len(all))
	}
}

func TestRegistry_ListSkipsCorruptFiles(t *testing.T) {
	reg := newTestRegistry(t)

	auto := &domain.Automation{Name: "Good", Prompt: "p", Schedule: domain.Schedule{RRule: "FREQ=DAILY"}}
	if err := reg.Create(auto); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(reg.Dir(), "broken.md"), []byte("no frontmatter here"), 0o644); err != nil {
		t.Fatal(err)
	}

	autos, err := reg.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(autos) != 1 || autos[0].ID != "good" {
		t.Errorf("autos = %v", autos)
	}
}

func TestRegistry_UpdatePreservesCreatedAt(t *testing.T) {
	reg := newTestRegistry(t)

	auto := &domain.Automation{Name: "Daily", Prompt: "v1", Schedule: domain.Schedule{RRule: "FREQ=DAILY"}}
	if err := reg.Create(auto); err != nil {
		t.Fatal(err)
	}
	created := auto.CreatedAt

	auto.Prompt = "v2"
	if err := reg.Update(auto); err != nil {
		t.Fatal(err)
	}

	got, err := reg.Get("daily")
	if err != nil {
		t.Fatal(err)
	}
	if got.Prompt != "v2" {
		t.Errorf("Prompt = %q", got.Prompt)
	}
	if !got.CreatedAt.Equal(created.Truncate(time.Second)) && !got.CreatedAt.Equal(created) {
		// YAML round-trips RFC3339; allow sub-second loss.
		if got.CreatedAt.Unix() != created.Unix() {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}
	}
}

func TestRegistry_UpdateMissing(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Update(&domain.Automation{ID: "ghost", Name: "Ghost"})
	if err == nil {
		t.Error("expected error updating missing automation")
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg := newTestRegistry(t)
	auto := &domain.Automation{Name: "Daily", Prompt: "p", Schedule: domain.Schedule{RRule: "FREQ=DAILY"}}
	if err := reg.Create(auto); err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete("daily"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get("daily"); err == nil {
		t.Error("expected error after delete")
	}
}

func TestWatcher_ReportsChangedIDs(t *testing.T) {
	reg := newTestRegistry(t)

	changed := make(chan []string, 1)
	w, err := NewWatcher(reg, func(ids []string) {
		select {
		case changed <- ids:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	w.SetDebounce(50 * time.Millisecond)
	w.Start(context.Background())
	defer w.Stop()

	auto := &domain.Automation{Name: "Daily", Prompt: "p", Schedule: domain.Schedule{RRule: "FREQ=DAILY"}}
	if err := reg.Create(auto); err != nil {
		t.Fatal(err)
	}

	select {
	case ids := <-changed:
		found := false
		for _, id := range ids {
			if id == "daily" {
				found = true
			}
			if strings.HasPrefix(id, ".") {
				t.Errorf("temp file id leaked: %q", id)
			}
		}
		if !found {
			t.Errorf("ids = %v, want daily", ids)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change callback after create")
	}
}
