// ABOUTME: Entry point for dxtr-server, the research assistant session server
// ABOUTME: Commands: serve, init, health

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/dxtr-chat/dxtr/internal/agent"
	"github.com/dxtr-chat/dxtr/internal/config"
	"github.com/dxtr-chat/dxtr/internal/gateway"
	"github.com/dxtr-chat/dxtr/internal/rankcache"
	"github.com/dxtr-chat/dxtr/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _      _
  __| |_  _| |_ _ __
 / _' \ \/ / __| '__|
| (_| |>  <| |_| |
 \__,_/_/\_\\__|_|
`

// rankingsCleanupInterval is how often expired ranking rows are purged.
const rankingsCleanupInterval = time.Hour

// getConfigPath returns the path to the server config file.
// Priority: DXTR_CONFIG env var > XDG_CONFIG_HOME/dxtr/server.yaml > ~/.config/dxtr/server.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DXTR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "dxtr", "server.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: dxtr-server <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the server")
		fmt.Println("  init     Create a starter config file")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Auth.APIKey == "" {
		yellow := color.New(color.FgYellow)
		yellow.Print("    ▶ ")
		fmt.Println("Auth:     disabled (no api_key configured)")
	}
	fmt.Println()

	logger.Info("starting dxtr-server",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path, store.Options{
		HistoryLimit: cfg.Session.HistoryLimit,
		HistoryTTL:   cfg.Session.HistoryTTL,
		RankingsTTL:  cfg.Cache.RankingsTTL,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	pipeline := agent.NewPipeline(st, devRespond, devGenerate, devScore, agent.Config{
		Workers:             cfg.Scoring.Workers,
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
	}, logger)

	gw := gateway.New(pipeline, gateway.Options{
		APIKey:            cfg.Auth.APIKey,
		KeepaliveInterval: cfg.Session.KeepaliveInterval,
	}, logger)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: gw.Handler(),
	}

	go runRankingsCleanup(ctx, st, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// runRankingsCleanup periodically deletes expired ranking cache rows.
func runRankingsCleanup(ctx context.Context, st store.RankingStore, logger *slog.Logger) {
	ticker := time.NewTicker(rankingsCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := st.CleanupExpiredRankings(ctx)
			if err != nil {
				logger.Warn("rankings cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("expired rankings cleaned up", "deleted", deleted)
			}
		}
	}
}

// Development model functions. A real model backend replaces these when
// one is wired in; until then turns still exercise the whole session,
// cache and eventing path.

func devRespond(ctx context.Context, turn *agent.TurnContext, userMessage string) (string, error) {
	return fmt.Sprintf("No model backend is configured. You said: %s", userMessage), nil
}

func devGenerate(ctx context.Context, task, input string) (string, error) {
	return fmt.Sprintf("[%s placeholder]\n\n%s", task, input), nil
}

func devScore(ctx context.Context, criteria string, item rankcache.Item) (int, string, error) {
	return 0, "", fmt.Errorf("no model backend configured")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

const starterConfig = `server:
  http_addr: "127.0.0.1:8080"

database:
  path: "dxtr.db"

auth:
  api_key: "${DXTR_API_KEY}"

session:
  history_limit: 100
  history_ttl: "24h"
  keepalive_interval: "10s"

cache:
  rankings_ttl: "24h"
  similarity_threshold: 0.6

scoring:
  workers: 8

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Created %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
