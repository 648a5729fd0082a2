// ABOUTME: Configuration loading and parsing for dxtr-server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dxtr-server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Session  SessionConfig  `yaml:"session"`
	Cache    CacheConfig    `yaml:"cache"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty APIKey disables
// authentication (development mode).
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// SessionConfig holds conversation history and streaming configuration
type SessionConfig struct {
	HistoryLimit int `yaml:"history_limit"`

	HistoryTTL        time.Duration `yaml:"-"`
	KeepaliveInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HistoryTTLRaw        string `yaml:"history_ttl"`
	KeepaliveIntervalRaw string `yaml:"keepalive_interval"`
}

// CacheConfig holds ranking cache configuration
type CacheConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	RankingsTTL time.Duration `yaml:"-"`

	RankingsTTLRaw string `yaml:"rankings_ttl"`
}

// ScoringConfig holds batch scoring configuration
type ScoringConfig struct {
	Workers int `yaml:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Session.HistoryLimit < 0 {
		return fmt.Errorf("session.history_limit must not be negative")
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be between 0 and 1")
	}
	if c.Scoring.Workers < 0 {
		return fmt.Errorf("scoring.workers must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Session.HistoryTTLRaw != "" {
		cfg.Session.HistoryTTL, err = time.ParseDuration(cfg.Session.HistoryTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing history_ttl %q: %w", cfg.Session.HistoryTTLRaw, err)
		}
	}

	if cfg.Session.KeepaliveIntervalRaw != "" {
		cfg.Session.KeepaliveInterval, err = time.ParseDuration(cfg.Session.KeepaliveIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing keepalive_interval %q: %w", cfg.Session.KeepaliveIntervalRaw, err)
		}
	}

	if cfg.Cache.RankingsTTLRaw != "" {
		cfg.Cache.RankingsTTL, err = time.ParseDuration(cfg.Cache.RankingsTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing rankings_ttl %q: %w", cfg.Cache.RankingsTTLRaw, err)
		}
	}

	return nil
}
