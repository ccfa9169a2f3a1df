package updater

import (
	"archive/tar"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestNeedsUpdate(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{"same version", "v0.1.3", "v0.1.3", false},
		{"patch update", "v0.1.3", "v0.1.4", true},
		{"minor update", "v0.1.3", "v0.2.0", true},
		{"major update", "v0.1.3", "v1.0.0", true},
		{"current is newer", "v0.2.0", "v0.1.3", false},
		{"without v prefix", "0.1.3", "0.1.4", true},
		{"mixed prefixes", "v0.1.3", "0.1.4", true},
		{"dev build wants release", "dev", "v0.1.4", true},
		{"dev to dev", "dev", "dev", false},
		{"multi-digit versions", "v0.1.9", "v0.1.10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NeedsUpdate(tt.current, tt.latest)
			if got != tt.want {
				t.Errorf("NeedsUpdate(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  [3]int
	}{
		{"0.1.3", [3]int{0, 1, 3}},
		{"1.0.0", [3]int{1, 0, 0}},
		{"10.20.30", [3]int{10, 20, 30}},
		{"invalid", [3]int{0, 0, 0}},
		{"1.2", [3]int{1, 2, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseVersion(tt.input); got != tt.want {
				t.Errorf("parseVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCheckLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/agentdeck/autopilot/releases/latest" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"tag_name": "v0.2.1", "name": "0.2.1"}`))
	}))
	defer server.Close()

	u := New()
	u.apiBase = server.URL

	tag, err := u.CheckLatest()
	if err != nil {
		t.Fatalf("CheckLatest: %v", err)
	}
	if tag != "v0.2.1" {
		t.Errorf("tag = %q, want v0.2.1", tag)
	}
}

func TestCheckLatest_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	u := New()
	u.apiBase = server.URL

	if _, err := u.CheckLatest(); err == nil {
		t.Error("expected error on 403 response")
	}
}

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0755, Size: int64(len(content)), Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "autopilot_0.2.1_linux_amd64.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"README.md":                "docs",
		"autopilot_0.2.1/autopilot": "#!binary",
	})

	if err := extractTarGz(archive, dir, "autopilot"); err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "autopilot"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "#!binary" {
		t.Errorf("extracted content = %q", data)
	}
}

func TestExtractTarGz_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "release.tar.gz")
	writeTarGz(t, archive, map[string]string{"README.md": "docs"})

	if err := extractTarGz(archive, dir, "autopilot"); err == nil {
		t.Error("expected error when binary missing from archive")
	}
}
