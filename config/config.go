// Package config provides configuration loading and management for the
// co-investigator service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete co-investigator configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	NATS     NATSConfig     `yaml:"nats"`
	LLM      LLMConfig      `yaml:"llm"`
	Executor ExecutorConfig `yaml:"executor"`
	Sources  SourcesConfig  `yaml:"sources"`
	Report   ReportConfig   `yaml:"report"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown on SIGTERM
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NATSConfig configures the NATS connection backing session and
// checkpoint durability
type NATSConfig struct {
	// URL is the NATS server URL (default: nats://localhost:4222)
	URL string `yaml:"url"`
}

// LLMConfig configures the language model layer
type LLMConfig struct {
	// RegistryPath points at the model registry JSON file. Empty means
	// the built-in registry defaults.
	RegistryPath string `yaml:"registry_path"`
	// RouterThreshold is the minimum classifier confidence accepted
	// before falling back to clarification (0-1, default: 0.6)
	RouterThreshold float64 `yaml:"router_threshold"`
}

// ExecutorConfig configures plan execution pacing. The boolean fields
// are pointers so a file can override a true default with false; use
// the Config accessor methods to read them.
type ExecutorConfig struct {
	// ConfirmEachStep gates every task on explicit user confirmation
	ConfirmEachStep *bool `yaml:"confirm_each_step"`
	// HaltOnFailure keeps the cursor on a failed task instead of
	// advancing past it
	HaltOnFailure *bool `yaml:"halt_on_failure"`
	// TaskTimeout is the maximum time one retrieval task may run
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// SourcesConfig configures the literature source clients
type SourcesConfig struct {
	// RequestTimeout bounds each upstream API call
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ResultLimit is the maximum records fetched per task
	ResultLimit int `yaml:"result_limit"`
	// PubMedAPIKey raises the NCBI rate limit when set
	PubMedAPIKey string `yaml:"pubmed_api_key"`
	// EnrichTopEvidence fetches and extracts the top result's page
	// after each retrieval task
	EnrichTopEvidence *bool `yaml:"enrich_top_evidence"`
	// Catalog configures the local JSONL corpus source
	Catalog CatalogConfig `yaml:"catalog"`
}

// CatalogConfig configures the local dataset catalog
type CatalogConfig struct {
	// Root is the directory scanned for corpora (empty = disabled)
	Root string `yaml:"root"`
	// Patterns are the glob patterns matched under the root
	Patterns []string `yaml:"patterns"`
	// Watch keeps the catalog current as files change
	Watch *bool `yaml:"watch"`
}

// ReportConfig configures report export
type ReportConfig struct {
	// OutputDir is where exported reports are written
	OutputDir string `yaml:"output_dir"`
}

// Bool returns a pointer to v, for building Config literals.
func Bool(v bool) *bool {
	return &v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// ConfirmEachStep reports whether every task waits on explicit user
// confirmation (default true).
func (c *Config) ConfirmEachStep() bool {
	return boolOr(c.Executor.ConfirmEachStep, true)
}

// HaltOnFailure reports whether the cursor stays on a failed task
// (default true).
func (c *Config) HaltOnFailure() bool {
	return boolOr(c.Executor.HaltOnFailure, true)
}

// EnrichTopEvidence reports whether top results get page enrichment
// (default false).
func (c *Config) EnrichTopEvidence() bool {
	return boolOr(c.Sources.EnrichTopEvidence, false)
}

// CatalogWatch reports whether the corpus catalog watches for file
// changes (default false).
func (c *Config) CatalogWatch() bool {
	return boolOr(c.Sources.Catalog.Watch, false)
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		LLM: LLMConfig{
			RegistryPath:    "",
			RouterThreshold: 0.6,
		},
		Executor: ExecutorConfig{
			ConfirmEachStep: Bool(true),
			HaltOnFailure:   Bool(true),
			TaskTimeout:     60 * time.Second,
		},
		Sources: SourcesConfig{
			RequestTimeout:    15 * time.Second,
			ResultLimit:       10,
			EnrichTopEvidence: Bool(false),
			Catalog: CatalogConfig{
				Root:     "",
				Patterns: nil, // Catalog defaults apply
				Watch:    Bool(false),
			},
		},
		Report: ReportConfig{
			OutputDir: "reports",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.LLM.RouterThreshold <= 0 || c.LLM.RouterThreshold > 1 {
		return fmt.Errorf("llm.router_threshold must be between 0 and 1")
	}
	if c.Executor.TaskTimeout <= 0 {
		return fmt.Errorf("executor.task_timeout must be positive")
	}
	if c.Sources.ResultLimit < 1 || c.Sources.ResultLimit > 100 {
		return fmt.Errorf("sources.result_limit must be 1-100")
	}
	if c.Report.OutputDir == "" {
		return fmt.Errorf("report.output_dir is required")
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

// Merge merges another config into this one (other takes precedence
// for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// LLM
	if other.LLM.RegistryPath != "" {
		c.LLM.RegistryPath = other.LLM.RegistryPath
	}
	if other.LLM.RouterThreshold != 0 {
		c.LLM.RouterThreshold = other.LLM.RouterThreshold
	}

	// Executor
	if other.Executor.ConfirmEachStep != nil {
		c.Executor.ConfirmEachStep = other.Executor.ConfirmEachStep
	}
	if other.Executor.HaltOnFailure != nil {
		c.Executor.HaltOnFailure = other.Executor.HaltOnFailure
	}
	if other.Executor.TaskTimeout != 0 {
		c.Executor.TaskTimeout = other.Executor.TaskTimeout
	}

	// Sources
	if other.Sources.RequestTimeout != 0 {
		c.Sources.RequestTimeout = other.Sources.RequestTimeout
	}
	if other.Sources.ResultLimit != 0 {
		c.Sources.ResultLimit = other.Sources.ResultLimit
	}
	if other.Sources.PubMedAPIKey != "" {
		c.Sources.PubMedAPIKey = other.Sources.PubMedAPIKey
	}
	if other.Sources.EnrichTopEvidence != nil {
		c.Sources.EnrichTopEvidence = other.Sources.EnrichTopEvidence
	}
	if other.Sources.Catalog.Root != "" {
		c.Sources.Catalog.Root = other.Sources.Catalog.Root
	}
	if other.Sources.Catalog.Watch != nil {
		c.Sources.Catalog.Watch = other.Sources.Catalog.Watch
	}
	if len(other.Sources.Catalog.Patterns) > 0 {
		c.Sources.Catalog.Patterns = other.Sources.Catalog.Patterns
	}

	// Report
	if other.Report.OutputDir != "" {
		c.Report.OutputDir = other.Report.OutputDir
	}
}
