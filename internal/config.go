package internal

import (
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Search SearchConfig      `yaml:"search"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Search.Validate()
}

// ApplicationConfig holds application-level configuration. MetricsAddr
// is the listen address of the Prometheus scrape endpoint; empty
// disables it.
type ApplicationConfig struct {
	LogLevel    slog.Level `yaml:"log_level"`
	MetricsAddr string     `yaml:"metrics_addr"`
}

// VaultConfig holds the path to the Markdown vault directory.
// ExcludedFolders are vault-relative prefixes invisible to indexing
// (e.g. ".obsidian", "templates").
type VaultConfig struct {
	Path            string   `yaml:"path"`
	ExcludedFolders []string `yaml:"excluded_folders"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SearchConfig tunes the search engine and its result cache.
type SearchConfig struct {
	CacheBudgetBytes int64 `yaml:"cache_budget_bytes"`
	Fuzzy            bool  `yaml:"fuzzy"`
	CaseSensitive    bool  `yaml:"case_sensitive"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheBudgetBytes, validation.Min(int64(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:    slog.LevelInfo,
			MetricsAddr: "",
		},
		Vault: VaultConfig{
			Path:            "./vault",
			ExcludedFolders: []string{".obsidian", ".trash"},
		},
		SQLite: SQLiteConfig{
			Path: "./othala.db",
		},
		Search: SearchConfig{
			CacheBudgetBytes: 8 << 20,
			Fuzzy:            true,
		},
	}
}
