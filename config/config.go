// Package config provides configuration loading and management for
// stageground.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guidelab/stageground/staging"
)

// Config represents the complete stageground configuration
type Config struct {
	Repo       RepoConfig       `yaml:"repo"`
	NATS       NATSConfig       `yaml:"nats"`
	Store      StoreConfig      `yaml:"store"`
	Remote     RemoteConfig     `yaml:"remote"`
	Validation ValidationConfig `yaml:"validation"`
}

// RepoConfig identifies the target repository and its local checkout
type RepoConfig struct {
	// Owner is the repository owner (organization or user)
	Owner string `yaml:"owner"`
	// Name is the repository name
	Name string `yaml:"name"`
	// Branch is the target branch for staging and commit
	Branch string `yaml:"branch"`
	// Path is the local checkout root (auto-detected from git if empty)
	Path string `yaml:"path"`
}

// Key returns the repository key the configuration targets.
func (r RepoConfig) Key() staging.RepositoryKey {
	return staging.RepositoryKey{Owner: r.Owner, Repo: r.Name, Branch: r.Branch}
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// StoreConfig selects and configures the staging store backend
type StoreConfig struct {
	// Backend is one of "nats", "sqlite", "memory"
	Backend string `yaml:"backend"`
	// Path is the SQLite database path (sqlite backend only)
	Path string `yaml:"path"`
	// Retention bounds save-point history per session (0 = default)
	Retention int `yaml:"retention"`
}

// RemoteConfig bounds calls to the Content Source and Commit Sink
type RemoteConfig struct {
	// Timeout is the maximum time for one remote call
	Timeout time.Duration `yaml:"timeout"`
}

// ValidationConfig tunes edit-triggered validation reports
type ValidationConfig struct {
	// IncludeWarnings keeps warning-severity violations in reports
	IncludeWarnings bool `yaml:"include_warnings"`
	// IncludeInfo keeps info-severity violations in reports
	IncludeInfo bool `yaml:"include_info"`
	// Component optionally narrows rules to one logical component
	Component string `yaml:"component"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Repo: RepoConfig{
			Branch: "main",
			Path:   "", // Auto-detect
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Store: StoreConfig{
			Backend:   "nats",
			Retention: staging.DefaultRetention,
		},
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
		Validation: ValidationConfig{
			IncludeWarnings: true,
			IncludeInfo:     true,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Repo.Branch == "" {
		return fmt.Errorf("repo.branch is required")
	}
	switch c.Store.Backend {
	case "nats", "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend must be nats, sqlite, or memory, got %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for the sqlite backend")
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must not be negative")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Repo
	if other.Repo.Owner != "" {
		c.Repo.Owner = other.Repo.Owner
	}
	if other.Repo.Name != "" {
		c.Repo.Name = other.Repo.Name
	}
	if other.Repo.Branch != "" {
		c.Repo.Branch = other.Repo.Branch
	}
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.Retention != 0 {
		c.Store.Retention = other.Store.Retention
	}

	// Remote
	if other.Remote.Timeout != 0 {
		c.Remote.Timeout = other.Remote.Timeout
	}

	// Validation
	if other.Validation.Component != "" {
		c.Validation.Component = other.Validation.Component
	}
}
