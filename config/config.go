package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvGithubToken overrides the configured GitHub API token
	EnvGithubToken = "ISSUESCOUT_GITHUB_TOKEN"
	// EnvDatabasePath overrides the configured database path
	EnvDatabasePath = "ISSUESCOUT_DB_PATH"
)

// RepositoryTarget is one configured search target
type RepositoryTarget struct {
	// Repository in the format "owner/name"
	Repository string `json:"repository"`
	// Priority breaks ties between near-equal scores; higher wins
	Priority int `json:"priority"`
	Enabled  bool `json:"enabled"`
	// Token overrides the global token for this repository (optional)
	Token string `json:"token,omitempty"`
}

// Config represents the application configuration
type Config struct {
	// GitHub API token (optional; unauthenticated rate limits apply without it)
	GitHubToken string `json:"github_token"`

	// Path to the SQLite database file
	DatabasePath string `json:"database_path"`

	// Search-cache TTL in minutes; 0 means the 30-minute default
	CacheTTLMinutes int `json:"cache_ttl_minutes"`

	// Environment selects log output ("dev" is human-readable)
	Environment string `json:"environment"`

	Repositories []RepositoryTarget `json:"repositories"`
}

// CacheTTL returns the configured cache TTL as a duration, zero when
// unset so callers fall back to their default.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// LoadConfig loads the configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHubToken = envToken
	}
	if envPath := os.Getenv(EnvDatabasePath); envPath != "" {
		config.DatabasePath = envPath
	}

	if config.DatabasePath == "" {
		config.DatabasePath = "issuescout.db"
	}

	// Make database path absolute if it's relative
	if !filepath.IsAbs(config.DatabasePath) {
		configDir := filepath.Dir(path)
		config.DatabasePath = filepath.Join(configDir, config.DatabasePath)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a JSON file
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		GitHubToken:  "",
		DatabasePath: "issuescout.db",
		Repositories: []RepositoryTarget{
			{Repository: "example/repo", Priority: 0, Enabled: true},
		},
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
