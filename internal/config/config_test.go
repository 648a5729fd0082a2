// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  api_key: "secret-key"

session:
  history_limit: 50
  history_ttl: "12h"
  keepalive_interval: "10s"

cache:
  rankings_ttl: "24h"
  similarity_threshold: 0.6

scoring:
  workers: 4

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.APIKey != "secret-key" {
		t.Errorf("Auth.APIKey = %q, want %q", cfg.Auth.APIKey, "secret-key")
	}
	if cfg.Session.HistoryLimit != 50 {
		t.Errorf("Session.HistoryLimit = %d, want 50", cfg.Session.HistoryLimit)
	}
	if cfg.Session.HistoryTTL != 12*time.Hour {
		t.Errorf("Session.HistoryTTL = %v, want 12h", cfg.Session.HistoryTTL)
	}
	if cfg.Session.KeepaliveInterval != 10*time.Second {
		t.Errorf("Session.KeepaliveInterval = %v, want 10s", cfg.Session.KeepaliveInterval)
	}
	if cfg.Cache.RankingsTTL != 24*time.Hour {
		t.Errorf("Cache.RankingsTTL = %v, want 24h", cfg.Cache.RankingsTTL)
	}
	if cfg.Cache.SimilarityThreshold != 0.6 {
		t.Errorf("Cache.SimilarityThreshold = %v, want 0.6", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Scoring.Workers != 4 {
		t.Errorf("Scoring.Workers = %d, want 4", cfg.Scoring.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("DXTR_API_KEY", "from-env")

	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  api_key: "${DXTR_API_KEY}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.APIKey != "from-env" {
		t.Errorf("Auth.APIKey = %q, want %q", cfg.Auth.APIKey, "from-env")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
auth:
  api_key: "${DXTR_DEFINITELY_UNSET_VAR}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.APIKey != "" {
		t.Errorf("Auth.APIKey = %q, want empty", cfg.Auth.APIKey)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
session:
  history_ttl: "one day"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "history_ttl") {
		t.Errorf("error %q should mention history_ttl", err.Error())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
`,
			want: "server.http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "127.0.0.1:8080"
`,
			want: "database.path",
		},
		{
			name: "threshold out of range",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
cache:
  similarity_threshold: 1.5
`,
			want: "similarity_threshold",
		},
		{
			name: "negative workers",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./test.db"
scoring:
  workers: -1
`,
			want: "scoring.workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err.Error(), tt.want)
			}
		})
	}
}
