// Package config loads the application's TOML configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Server        ServerConfig        `toml:"server"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds engine-wide settings
type GeneralConfig struct {
	RegistryDir       string `toml:"registry_dir"`  // automation .md files
	MemoryDir         string `toml:"memory_dir"`    // per-automation memory files
	DatabasePath      string `toml:"database_path"` // run history + timing
	MaxConcurrentRuns int    `toml:"max_concurrent_runs"`
	DefaultModel      string `toml:"default_model"` // "providerID/modelID"
}

// ServerConfig points at the agent-session server
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds the status API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".autopilot")
	return &Config{
		General: GeneralConfig{
			RegistryDir:       filepath.Join(base, "automations"),
			MemoryDir:         filepath.Join(base, "memory"),
			DatabasePath:      filepath.Join(base, "autopilot.db"),
			MaxConcurrentRuns: 5,
		},
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:4096",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.RegistryDir = ExpandPath(cfg.General.RegistryDir)
	cfg.General.MemoryDir = ExpandPath(cfg.General.MemoryDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// LocalConfigName is the per-directory config file searched for by
// FindLocalConfig
const LocalConfigName = ".autopilot.toml"

// FindLocalConfig walks from the working directory upward looking for a
// LocalConfigName file, returning its path or ""
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadWithLocalFallback loads the explicit path when given, otherwise the
// nearest local config, otherwise the user-level default path
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "autopilot", "config.toml")
}
