// ABOUTME: Chat pipeline: runs one coordinated turn driving the injected model function
// ABOUTME: Wires store, ranking cache, scorer and event bus into a per-turn tool surface

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dxtr-chat/dxtr/internal/bus"
	"github.com/dxtr-chat/dxtr/internal/rankcache"
	"github.com/dxtr-chat/dxtr/internal/session"
	"github.com/dxtr-chat/dxtr/internal/store"
)

// GenerateFunc is the opaque text-generation call used by the tools:
// task names the operation ("synthesize-profile", "summarize-repository"),
// input is the assembled prompt material.
type GenerateFunc func(ctx context.Context, task, input string) (string, error)

// ModelFunc is the coordinating model call for one turn. It receives the
// turn context with the tool surface and must return the assistant's
// reply text.
type ModelFunc func(ctx context.Context, turn *TurnContext, userMessage string) (string, error)

// TurnContext is everything the model function can see and touch during
// one turn. State mutations persist only if the turn commits.
type TurnContext struct {
	Key     store.SessionKey
	State   *store.SessionState
	History []store.Message
	Events  *bus.Bus
	Tools   *Tools
}

// Config tunes the pipeline's cache and scoring behavior.
type Config struct {
	// Workers bounds concurrent score calls per batch (default 8)
	Workers int
	// SimilarityThreshold for fuzzy criteria reuse (default 0.6)
	SimilarityThreshold float64
}

// Pipeline turns incoming chat messages into coordinated turns: it holds
// the per-session locking discipline, the ranking cache and the injected
// model functions.
type Pipeline struct {
	coord    *session.Coordinator
	store    store.Store
	cache    *rankcache.Cache
	workers  int
	respond  ModelFunc
	generate GenerateFunc
	score    rankcache.ScoreFunc
	logger   *slog.Logger
}

// NewPipeline wires a pipeline over the given store and model functions.
func NewPipeline(st store.Store, respond ModelFunc, generate GenerateFunc, score rankcache.ScoreFunc, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		coord:    session.NewCoordinator(st, logger),
		store:    st,
		cache:    rankcache.New(st, cfg.SimilarityThreshold, logger),
		workers:  cfg.Workers,
		respond:  respond,
		generate: generate,
		score:    score,
		logger:   logger.With("component", "pipeline"),
	}
}

// RunChatTurn executes one full chat turn under the session lock: load
// state and history, let the model respond with tools in hand, then
// persist the user and assistant messages together with the updated
// state. Failures and cancellation discard everything.
func (p *Pipeline) RunChatTurn(ctx context.Context, key store.SessionKey, message string, events *bus.Bus) (*session.TurnResult, error) {
	return p.coord.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*session.TurnOutput, error) {
		turn := &TurnContext{
			Key:     key,
			State:   state,
			History: history,
			Events:  events,
			Tools: &Tools{
				key:      key,
				state:    state,
				events:   events,
				store:    p.store,
				cache:    p.cache,
				scorer:   rankcache.NewScorer(p.workers, events, p.logger),
				score:    p.score,
				generate: p.generate,
				logger:   p.logger,
			},
		}

		response, err := p.respond(ctx, turn, message)
		if err != nil {
			return nil, fmt.Errorf("model turn: %w", err)
		}

		return &session.TurnOutput{
			Response: response,
			NewMessages: []store.Message{
				{Role: store.RoleUser, Content: message},
				{Role: store.RoleAssistant, Content: response},
			},
		}, nil
	})
}
