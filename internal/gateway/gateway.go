// ABOUTME: HTTP gateway exposing the chat pipeline over SSE
// ABOUTME: Streams bus events while a turn runs, with keepalives and a final done payload

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/dxtr-chat/dxtr/internal/bus"
	"github.com/dxtr-chat/dxtr/internal/session"
	"github.com/dxtr-chat/dxtr/internal/store"
)

// DefaultKeepaliveInterval is how long the SSE loop waits for a bus event
// before emitting a synthetic keepalive status.
const DefaultKeepaliveInterval = 10 * time.Second

// safeIDPattern bounds user and session identifiers: they appear in
// database keys and log lines, so only a conservative charset is allowed.
var safeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// TurnRunner executes one chat turn, publishing progress on the bus.
type TurnRunner interface {
	RunChatTurn(ctx context.Context, key store.SessionKey, message string, events *bus.Bus) (*session.TurnResult, error)
}

// ChatRequest is the JSON request body for POST /chat/stream.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ArtifactPayload is one displayable artifact in the done event.
type ArtifactPayload struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

// Options configures the gateway.
type Options struct {
	// APIKey enables static bearer auth when non-empty
	APIKey string
	// KeepaliveInterval between synthetic status events (default 10s)
	KeepaliveInterval time.Duration
	// BusCapacity for per-request event queues (default 100)
	BusCapacity int
}

// Gateway serves the chat SSE endpoint and health checks.
type Gateway struct {
	pipeline TurnRunner
	opts     Options
	md       goldmark.Markdown
	logger   *slog.Logger
}

// New creates a gateway over the given turn runner.
func New(pipeline TurnRunner, opts Options, logger *slog.Logger) *Gateway {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		pipeline: pipeline,
		opts:     opts,
		md:       goldmark.New(),
		logger:   logger.With("component", "gateway"),
	}
}

// Handler returns the gateway's HTTP handler with auth applied to the
// chat endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /chat/stream", requireAPIKey(g.opts.APIKey, http.HandlerFunc(g.handleChatStream)))
	mux.HandleFunc("GET /health", g.handleHealth)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	requestID := uuid.NewString()
	key := store.SessionKey{UserID: req.UserID, SessionID: req.SessionID}
	logger := g.logger.With("request_id", requestID, "session", key.String())
	logger.Info("chat turn started")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "status", map[string]string{
		"request_id": requestID,
		"message":    "Working on it...",
	})
	flusher.Flush()

	events := bus.New(g.opts.BusCapacity, logger)
	defer events.Close()

	type turnOutcome struct {
		result *session.TurnResult
		err    error
	}
	outcome := make(chan turnOutcome, 1)
	go func() {
		result, err := g.pipeline.RunChatTurn(r.Context(), key, req.Message, events)
		outcome <- turnOutcome{result: result, err: err}
	}()

	keepalive := time.NewTimer(g.opts.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case o := <-outcome:
			g.finishStream(w, flusher, events, o.result, o.err, requestID, logger)
			return

		case ev := <-events.Events():
			g.writeSSEEvent(w, string(ev.Type), map[string]any{
				"message": ev.Message,
				"payload": ev.Payload,
			})
			flusher.Flush()
			if !keepalive.Stop() {
				select {
				case <-keepalive.C:
				default:
				}
			}
			keepalive.Reset(g.opts.KeepaliveInterval)

		case <-keepalive.C:
			g.writeSSEEvent(w, "status", map[string]string{"message": "Still working..."})
			flusher.Flush()
			keepalive.Reset(g.opts.KeepaliveInterval)

		case <-r.Context().Done():
			logger.Info("client disconnected")
			return
		}
	}
}

// finishStream drains remaining events, then emits either an error event
// or the final done payload with the response and displayable artifacts.
func (g *Gateway) finishStream(w http.ResponseWriter, flusher http.Flusher, events *bus.Bus, result *session.TurnResult, turnErr error, requestID string, logger *slog.Logger) {
	for {
		ev, ok := events.TryNext()
		if !ok {
			break
		}
		g.writeSSEEvent(w, string(ev.Type), map[string]any{
			"message": ev.Message,
			"payload": ev.Payload,
		})
	}

	if turnErr != nil {
		logger.Error("chat turn failed", "error", turnErr)
		g.writeSSEEvent(w, "error", map[string]string{
			"request_id": requestID,
			"error":      "failed to process your request",
		})
		flusher.Flush()
		return
	}

	// Direct content is prepended to the model's answer in publish order
	message := result.Response
	if direct := events.DrainContent(); len(direct) > 0 {
		message = strings.Join(direct, "\n\n") + "\n\n" + message
	}

	artifacts := make([]ArtifactPayload, 0, len(result.Artifacts))
	for _, a := range result.Artifacts {
		artifacts = append(artifacts, ArtifactPayload{
			ID:      a.Handle,
			Type:    string(a.Meta.Type),
			Summary: a.Meta.Summary,
			Content: a.Content,
			HTML:    g.renderHTML(a.Content),
		})
	}

	g.writeSSEEvent(w, "done", map[string]any{
		"request_id": requestID,
		"message":    message,
		"artifacts":  artifacts,
	})
	flusher.Flush()
	logger.Info("chat turn completed", "artifacts", len(artifacts))
}

// renderHTML converts artifact markdown to HTML for rich clients. A
// conversion failure degrades to raw markdown only.
func (g *Gateway) renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(markdown), &buf); err != nil {
		g.logger.Warn("markdown conversion failed", "error", err)
		return ""
	}
	return buf.String()
}

func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseChatRequest parses and validates a ChatRequest from the given reader.
// User and session IDs are restricted to a conservative charset.
func parseChatRequest(r io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if !safeIDPattern.MatchString(req.UserID) {
		return nil, errors.New("user_id must match [A-Za-z0-9_-]{1,128}")
	}
	if !safeIDPattern.MatchString(req.SessionID) {
		return nil, errors.New("session_id must match [A-Za-z0-9_-]{1,128}")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}

	return &req, nil
}
