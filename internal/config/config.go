// Package config provides configuration types and defaults for issuetree.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/issuetree/internal/flags"
	"github.com/zjrosen/issuetree/internal/issue"
	"github.com/zjrosen/issuetree/internal/log"
)

// SiteConfig describes one backend.
type SiteConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Name     string `mapstructure:"name" yaml:"name,omitempty"`
	// Product is jira, bitbucket or local.
	Product  string `mapstructure:"product" yaml:"product"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `mapstructure:"token_env" yaml:"token_env,omitempty"`
	// DBPath is the database file of a local site.
	DBPath   string `mapstructure:"db_path" yaml:"db_path,omitempty"`

	// Jira custom field IDs; empty uses the Jira Cloud defaults.
	EpicLinkField string `mapstructure:"epic_link_field" yaml:"epic_link_field,omitempty"`
	EpicNameField string `mapstructure:"epic_name_field" yaml:"epic_name_field,omitempty"`
}

// Site returns the engine's view of the site.
func (s SiteConfig) Site() issue.Site {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return issue.Site{ID: s.ID, Name: name, Product: issue.Product(s.Product), BaseURL: s.BaseURL}
}

// Token reads the site's API token from its environment variable.
func (s SiteConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// QueryConfig is a saved query shown as a tree.
type QueryConfig struct {
	ID      string `mapstructure:"id" yaml:"id"`
	Name    string `mapstructure:"name" yaml:"name"`
	Query   string `mapstructure:"query" yaml:"query"`
	SiteID  string `mapstructure:"site_id" yaml:"site_id"`
	Enabled *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// IsEnabled returns whether the query is enabled (defaults to true if nil).
func (q QueryConfig) IsEnabled() bool {
	return q.Enabled == nil || *q.Enabled
}

// ExplorerConfig controls tree display.
type ExplorerConfig struct {
	// NestSubtasks resolves parents and epics; false lists query results flat.
	NestSubtasks bool   `mapstructure:"nest_subtasks"`
	EmptyState   string `mapstructure:"empty_state"`
}

// FetchConfig controls remote access.
type FetchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CacheConfig controls the cross-resolution fetch cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/issuetree/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// Config holds all configuration options for issuetree.
type Config struct {
	Sites    []SiteConfig    `mapstructure:"sites"`
	Queries  []QueryConfig   `mapstructure:"queries"`
	Explorer ExplorerConfig  `mapstructure:"explorer"`
	Fetch    FetchConfig     `mapstructure:"fetch"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Tracing  TracingConfig   `mapstructure:"tracing"`
	Flags    map[string]bool `mapstructure:"flags"`
	Log      LogConfig       `mapstructure:"log"`
}

// SiteByID returns the site with the given ID.
func (c Config) SiteByID(id string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return SiteConfig{}, false
}

// DefaultSite returns the first configured site.
func (c Config) DefaultSite() (SiteConfig, bool) {
	if len(c.Sites) == 0 {
		return SiteConfig{}, false
	}
	return c.Sites[0], true
}

// FindQuery looks a saved query up by ID, then by case-insensitive name.
func (c Config) FindQuery(ref string) (QueryConfig, bool) {
	for _, q := range c.Queries {
		if q.ID == ref {
			return q, true
		}
	}
	for _, q := range c.Queries {
		if strings.EqualFold(q.Name, ref) {
			return q, true
		}
	}
	return QueryConfig{}, false
}

// EnabledQueries returns the saved queries that are enabled, in order.
func (c Config) EnabledQueries() []QueryConfig {
	var out []QueryConfig
	for _, q := range c.Queries {
		if q.IsEnabled() {
			out = append(out, q)
		}
	}
	return out
}

// DefaultConfigDir returns ~/.config/issuetree, or empty if the home
// directory is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "issuetree")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Sites: []SiteConfig{
			{ID: "local", Name: "Local", Product: string(issue.ProductLocal)},
		},
		Explorer: ExplorerConfig{
			NestSubtasks: true,
			EmptyState:   "No issues",
		},
		Fetch: FetchConfig{
			Concurrency: 8,
			MaxRetries:  3,
			Timeout:     30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     5 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{
			flags.FlagSharedFetch: true,
			flags.FlagFetchCache:  true,
		},
		Log: LogConfig{Level: "debug"},
	}
}

// Validate checks every section.
func Validate(cfg Config) error {
	if err := ValidateSites(cfg.Sites); err != nil {
		return err
	}
	if err := ValidateQueries(cfg.Queries, cfg.Sites); err != nil {
		return err
	}
	if err := ValidateFetch(cfg.Fetch); err != nil {
		return err
	}
	if err := ValidateCache(cfg.Cache); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateSites checks site configuration for errors.
func ValidateSites(sites []SiteConfig) error {
	seen := make(map[string]bool, len(sites))
	for i, s := range sites {
		if s.ID == "" {
			return fmt.Errorf("site %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("site %d: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true

		if !issue.Product(s.Product).Valid() {
			return fmt.Errorf("site %d (%s): product must be \"jira\", \"bitbucket\", or \"local\", got %q", i, s.ID, s.Product)
		}
		if s.Product == string(issue.ProductJira) && s.BaseURL == "" {
			return fmt.Errorf("site %d (%s): base_url is required for jira sites", i, s.ID)
		}
	}
	return nil
}

// ValidateQueries checks saved queries for errors. A query naming a site
// must name a configured one.
func ValidateQueries(queries []QueryConfig, sites []SiteConfig) error {
	known := make(map[string]bool, len(sites))
	for _, s := range sites {
		known[s.ID] = true
	}
	ids := make(map[string]bool, len(queries))
	for i, q := range queries {
		if q.Name == "" {
			return fmt.Errorf("query %d: name is required", i)
		}
		if strings.TrimSpace(q.Query) == "" {
			return fmt.Errorf("query %d (%s): query is required", i, q.Name)
		}
		if q.ID != "" {
			if ids[q.ID] {
				return fmt.Errorf("query %d (%s): duplicate id %q", i, q.Name, q.ID)
			}
			ids[q.ID] = true
		}
		if q.SiteID != "" && !known[q.SiteID] {
			return fmt.Errorf("query %d (%s): unknown site %q", i, q.Name, q.SiteID)
		}
	}
	return nil
}

// ValidateFetch checks fetch configuration for errors.
func ValidateFetch(fetch FetchConfig) error {
	if fetch.Concurrency < 0 {
		return fmt.Errorf("fetch.concurrency must not be negative, got %d", fetch.Concurrency)
	}
	if fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", fetch.MaxRetries)
	}
	if fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must not be negative, got %s", fetch.Timeout)
	}
	return nil
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(cache CacheConfig) error {
	if cache.Enabled && cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled, got %s", cache.TTL)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# issuetree configuration

# Sites are the backends queries run against.
# The first site is the default for queries that do not name one.
sites:
  - id: local
    name: Local
    product: local          # jira, bitbucket, or local
    # db_path: .issuetree/local.db

  # - id: acme
  #   name: Acme Jira
  #   product: jira
  #   base_url: https://acme.atlassian.net
  #   username: me@acme.com   # omit to send the token as a bearer PAT
  #   token_env: JIRA_API_TOKEN
  #   epic_link_field: customfield_10014
  #   epic_name_field: customfield_10011
  #
  # - id: bb
  #   product: bitbucket
  #   username: me
  #   token_env: BITBUCKET_APP_PASSWORD

# Saved queries, shown with 'issuetree query list'
# queries:
#   - id: mine
#     name: My open work
#     query: "assignee = me and status != done"
#     site_id: local
#     enabled: true

# Tree display
explorer:
  nest_subtasks: true       # false lists query results without parents or epics
  empty_state: No issues

# Remote access
fetch:
  concurrency: 8            # parallel lookups per resolution
  max_retries: 3            # retries of 5xx, 429, and transport errors
  timeout: 30s

# Cache fetched issues across resolutions
cache:
  enabled: false
  ttl: 5m

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/issuetree/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags
flags:
  shared-fetch: true        # share in-flight lookups within a resolution
  fetch-cache: true         # allow cache.enabled to take effect

# Debug log (written when --debug or ISSUETREE_DEBUG is set)
# log:
#   path: debug.log
#   level: debug
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
