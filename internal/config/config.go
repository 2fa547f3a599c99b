// Package config provides configuration management for the MAPS service.
//
// This package handles loading, defaulting, and validation of all system
// configuration including the content extraction service, LLM client,
// result storage, and the pipeline itself.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete system configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server" json:"server"`

	// Extraction configuration for the upstream section service
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm" json:"llm"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Performance configuration
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
}

// ServerConfig contains web server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors"`
}

// ExtractionConfig contains the content extraction service configuration
type ExtractionConfig struct {
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
}

// LLMConfig contains LLM service configuration
type LLMConfig struct {
	Provider       string        `yaml:"provider" json:"provider"`
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	ChatModel      string        `yaml:"chat_model" json:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model" json:"embedding_model"`
	Temperature    float64       `yaml:"temperature" json:"temperature"`
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts  int           `yaml:"retry_attempts" json:"retry_attempts"`
}

// DOIConfig contains citation enrichment configuration
type DOIConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	CrossRefURL string        `yaml:"crossref_url" json:"crossref_url"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	RateLimit   time.Duration `yaml:"rate_limit" json:"rate_limit"`
}

// StorageConfig contains result storage configuration
type StorageConfig struct {
	Type       string `yaml:"type" json:"type"` // "chromadb"
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	Tenant     string `yaml:"tenant" json:"tenant"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`

	// Connection settings
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`

	// Collection settings
	AutoCreateCollections bool   `yaml:"auto_create_collections" json:"auto_create_collections"`
	DistanceFunction      string `yaml:"distance_function" json:"distance_function"`
}

// PipelineConfig contains pipeline controller configuration
type PipelineConfig struct {
	RunTimeout        time.Duration `yaml:"run_timeout" json:"run_timeout"`
	StageTimeout      time.Duration `yaml:"stage_timeout" json:"stage_timeout"`
	MinOverviewLength int           `yaml:"min_overview_length" json:"min_overview_length"`
	MinSummaryLength  int           `yaml:"min_summary_length" json:"min_summary_length"`

	// Citation enrichment
	DOI DOIConfig `yaml:"doi" json:"doi"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "json" or "text"
	Output string `yaml:"output" json:"output"`
}

// PerformanceConfig contains concurrency and metrics configuration
type PerformanceConfig struct {
	MaxConcurrentRuns int  `yaml:"max_concurrent_runs" json:"max_concurrent_runs"`
	QueueSize         int  `yaml:"queue_size" json:"queue_size"`
	EnableMetrics     bool `yaml:"enable_metrics" json:"enable_metrics"`
	EnablePprof       bool `yaml:"enable_pprof" json:"enable_pprof"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			EnableCORS:   true,
		},
		Extraction: ExtractionConfig{
			BaseURL:       "http://localhost:8090",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			BaseURL:        "http://localhost:11434",
			ChatModel:      "llama3.2",
			EmbeddingModel: "nomic-embed-text",
			Temperature:    0.1,
			MaxTokens:      2048,
			Timeout:        60 * time.Second,
			RetryAttempts:  3,
		},
		Storage: StorageConfig{
			Type:                  "chromadb",
			Host:                  "localhost",
			Port:                  8000,
			Tenant:                "default_tenant",
			Database:              "maps",
			Collection:            "analysis_results",
			Timeout:               30 * time.Second,
			RetryAttempts:         3,
			AutoCreateCollections: true,
			DistanceFunction:      "cosine",
		},
		Pipeline: PipelineConfig{
			RunTimeout:        5 * time.Minute,
			StageTimeout:      60 * time.Second,
			MinOverviewLength: 40,
			MinSummaryLength:  40,
			DOI: DOIConfig{
				Enabled:     true,
				CrossRefURL: "https://api.crossref.org/works/",
				Timeout:     10 * time.Second,
				UserAgent:   "MAPS/1.0",
				RateLimit:   1 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Performance: PerformanceConfig{
			MaxConcurrentRuns: 4,
			QueueSize:         64,
			EnableMetrics:     true,
			EnablePprof:       false,
		},
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate extraction config
	if c.Extraction.BaseURL == "" {
		return fmt.Errorf("extraction base URL is required")
	}

	// Validate LLM config
	if c.LLM.Provider == "" {
		return fmt.Errorf("LLM provider is required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM base URL is required")
	}
	if c.LLM.ChatModel == "" {
		return fmt.Errorf("LLM chat model is required")
	}
	if c.LLM.EmbeddingModel == "" {
		return fmt.Errorf("LLM embedding model is required")
	}

	// Validate storage config
	if c.Storage.Type == "" {
		return fmt.Errorf("storage type is required")
	}
	if c.Storage.Host == "" {
		return fmt.Errorf("storage host is required")
	}
	if c.Storage.Port <= 0 || c.Storage.Port > 65535 {
		return fmt.Errorf("invalid storage port: %d", c.Storage.Port)
	}
	if c.Storage.Collection == "" {
		return fmt.Errorf("storage collection is required")
	}

	// Validate pipeline config
	if c.Pipeline.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("stage timeout must be positive")
	}
	if c.Pipeline.StageTimeout > c.Pipeline.RunTimeout {
		return fmt.Errorf("stage timeout %s exceeds run timeout %s",
			c.Pipeline.StageTimeout, c.Pipeline.RunTimeout)
	}
	if c.Pipeline.MinOverviewLength < 0 || c.Pipeline.MinSummaryLength < 0 {
		return fmt.Errorf("minimum text lengths must be non-negative")
	}

	// Validate performance config
	if c.Performance.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("max concurrent runs must be positive")
	}
	if c.Performance.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}

	return nil
}
