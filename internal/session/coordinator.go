// ABOUTME: SessionCoordinator serializes the load-compute-save cycle for one session
// ABOUTME: Guarantees save-or-discard: a failed or cancelled turn persists nothing

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dxtr-chat/dxtr/internal/store"
)

// Store is what the coordinator needs from persistence.
type Store interface {
	store.HistoryStore
	store.StateStore
}

// TurnOutput is what the pipeline hands back at the end of a turn.
type TurnOutput struct {
	Response    string          // the coordinator agent's textual answer
	NewMessages []store.Message // turn messages to append to history
}

// TurnFunc runs the agent/tool pipeline for one turn. It may mutate state
// in place; the coordinator persists the mutations only on success.
type TurnFunc func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error)

// TurnResult is the persisted outcome of a turn, including the artifacts
// that were queued for display while the pipeline ran.
type TurnResult struct {
	Response  string
	Artifacts []store.Artifact
}

// Coordinator ties the keyed mutex and the stores together. The mutex
// scope is the entire turn (load, pipeline, save) by design: a single
// user's rapid-fire messages are processed in arrival order with no lost
// updates, while different sessions never serialize against each other.
type Coordinator struct {
	keyed  *KeyedMutex
	store  Store
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. Pass nil logger for default.
func NewCoordinator(st Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		keyed:  NewKeyedMutex(),
		store:  st,
		logger: logger.With("component", "session"),
	}
}

// RunTurn executes one conversation turn under the session's lock:
// load state and history, run fn, persist the new messages and mutated
// state. If fn fails or ctx is cancelled, nothing is persisted and the
// lock is still released. Pending-display handles are resolved to full
// artifacts and cleared before the state is saved, so the next turn
// starts with an empty display queue.
func (c *Coordinator) RunTurn(ctx context.Context, key store.SessionKey, fn TurnFunc) (*TurnResult, error) {
	var result *TurnResult

	err := c.keyed.WithLock(key.String(), func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := c.store.GetState(ctx, key)
		if err != nil {
			return fmt.Errorf("loading session state: %w", err)
		}
		history, err := c.store.GetHistory(ctx, key)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}

		out, err := fn(ctx, state, history)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			// Cancelled mid-turn: discard everything the pipeline produced
			return err
		}

		artifacts := c.collectPendingArtifacts(ctx, key, state)
		state.PendingDisplay = nil

		if err := c.store.AppendHistory(ctx, key, out.NewMessages); err != nil {
			return fmt.Errorf("appending history: %w", err)
		}
		if err := c.store.SaveState(ctx, key, state); err != nil {
			return fmt.Errorf("saving session state: %w", err)
		}

		result = &TurnResult{
			Response:  out.Response,
			Artifacts: artifacts,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("turn completed",
		"session", key.String(),
		"artifacts", len(result.Artifacts))
	return result, nil
}

// collectPendingArtifacts loads the full content for every handle queued
// for display. A handle with missing content is a bug state; it is logged
// and skipped rather than failing the turn.
func (c *Coordinator) collectPendingArtifacts(ctx context.Context, key store.SessionKey, state *store.SessionState) []store.Artifact {
	var artifacts []store.Artifact
	for _, handle := range state.PendingDisplay {
		artifact, err := c.store.GetArtifact(ctx, key, handle)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.logger.Warn("pending artifact has no content",
					"session", key.String(),
					"handle", handle)
			} else {
				c.logger.Error("failed to load pending artifact",
					"session", key.String(),
					"handle", handle,
					"error", err)
			}
			continue
		}
		artifacts = append(artifacts, *artifact)
	}
	return artifacts
}
