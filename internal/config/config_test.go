package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.MaxConcurrentRuns != 5 {
		t.Errorf("MaxConcurrentRuns = %d, want 5", cfg.General.MaxConcurrentRuns)
	}
	if cfg.Server.BaseURL != "http://127.0.0.1:4096" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
registry_dir = "/test/automations"
max_concurrent_runs = 2

[server]
base_url = "http://localhost:5000"

[web]
port = 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.RegistryDir != "/test/automations" {
		t.Errorf("RegistryDir = %q, want /test/automations", cfg.General.RegistryDir)
	}
	if cfg.General.MaxConcurrentRuns != 2 {
		t.Errorf("MaxConcurrentRuns = %d, want 2", cfg.General.MaxConcurrentRuns)
	}
	if cfg.Server.BaseURL != "http://localhost:5000" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	// Unset sections keep defaults.
	if !cfg.Notifications.Desktop {
		t.Error("Notifications.Desktop should default to true")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.MaxConcurrentRuns != 5 {
		t.Errorf("MaxConcurrentRuns = %d, want default 5", cfg.General.MaxConcurrentRuns)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[general]\nregistry_dir = \"/local\""), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(subdir); err != nil {
		t.Fatal(err)
	}

	found := FindLocalConfig()
	// Resolve symlinks; macOS temp dirs live behind /private.
	if got, _ := filepath.EvalSymlinks(found); got != localConfig {
		if found != localConfig {
			t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
		}
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	explicitPath := filepath.Join(dir, "explicit.toml")

	content := `[general]
registry_dir = "/explicit"
`
	if err := os.WriteFile(explicitPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback(explicitPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.RegistryDir != "/explicit" {
		t.Errorf("RegistryDir = %q, want /explicit", cfg.General.RegistryDir)
	}
}

func TestLoadWithLocalFallback_LocalConfig(t *testing.T) {
	root := t.TempDir()
	localConfig := filepath.Join(root, LocalConfigName)

	content := `[general]
registry_dir = "/from-local"
`
	if err := os.WriteFile(localConfig, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.RegistryDir != "/from-local" {
		t.Errorf("RegistryDir = %q, want /from-local", cfg.General.RegistryDir)
	}
}
