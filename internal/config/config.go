// Package config loads the JSON configuration file controlling paths,
// sync cadence and keybindings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SyncConfig controls the reconciler's cadence and listing window
type SyncConfig struct {
	// Schedule is a cron expression; the "@every 30s" form is the default
	Schedule string `json:"schedule"`
	// PageSize is the remote listing window per label
	PageSize int64 `json:"page_size"`
}

// KeyBindings maps actions to keys. Input dispatch lives in the
// presentation layer; the core only carries the data.
type KeyBindings struct {
	MoveUp   []string `json:"move_up"`
	MoveDown []string `json:"move_down"`
	MarkRead []string `json:"mark_read"`
	Delete   []string `json:"delete"`
	Archive  []string `json:"archive"`
	Undo     []string `json:"undo"`
	Search   []string `json:"search"`
	Quit     []string `json:"quit"`
}

// Config holds all configuration for the application
type Config struct {
	Credentials string `json:"credentials"`
	Token       string `json:"token"`
	Database    string `json:"database"`
	LogFile     string `json:"log_file"`

	// Page size of the visible list
	ListPageSize int64 `json:"list_page_size"`

	Sync SyncConfig  `json:"sync"`
	Keys KeyBindings `json:"keys"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	dir := DefaultConfigDir()
	return &Config{
		Credentials:  filepath.Join(dir, "credentials.json"),
		Token:        filepath.Join(dir, "token.json"),
		Database:     filepath.Join(dir, "maildeck.db"),
		LogFile:      filepath.Join(dir, "maildeck.log"),
		ListPageSize: 50,
		Sync: SyncConfig{
			Schedule: "@every 30s",
			PageSize: 100,
		},
		Keys: KeyBindings{
			MoveUp:   []string{"k", "Up"},
			MoveDown: []string{"j", "Down"},
			MarkRead: []string{" "},
			Delete:   []string{"d", "Backspace"},
			Archive:  []string{"a"},
			Undo:     []string{"u"},
			Search:   []string{"/"},
			Quit:     []string{"q"},
		},
	}
}

// DefaultConfigDir returns ~/.config/maildeck, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "maildeck")
}

// DefaultConfigPath returns the default config file location, honoring the
// MAILDECK_CONFIG environment override.
func DefaultConfigPath() string {
	if p := os.Getenv("MAILDECK_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// LoadConfig reads a config file and fills gaps with defaults. A missing
// file yields the defaults without error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config as indented JSON with strict permissions
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Credentials == "" {
		c.Credentials = def.Credentials
	}
	if c.Token == "" {
		c.Token = def.Token
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.LogFile == "" {
		c.LogFile = def.LogFile
	}
	if c.ListPageSize <= 0 {
		c.ListPageSize = def.ListPageSize
	}
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = def.Sync.Schedule
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = def.Sync.PageSize
	}
}
