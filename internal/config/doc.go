// ABOUTME: Package documentation for config
// ABOUTME: Describes the YAML layout, env expansion and validation rules

// Package config handles configuration loading for dxtr-server.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults: unset durations and
// limits fall back to the store and pipeline defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  api_key: "${DXTR_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  history_ttl: "24h"
//	  keepalive_interval: "10s"
//	cache:
//	  rankings_ttl: "24h"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/dxtr/dxtr.db"
//
// Authentication (empty api_key disables auth for development):
//
//	auth:
//	  api_key: "${DXTR_API_KEY}"
//
// Session behavior:
//
//	session:
//	  history_limit: 100
//	  history_ttl: "24h"
//	  keepalive_interval: "10s"
//
// Ranking cache:
//
//	cache:
//	  rankings_ttl: "24h"
//	  similarity_threshold: 0.6
//
// Batch scoring:
//
//	scoring:
//	  workers: 8
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
