// ABOUTME: Tests for the session coordinator's load-compute-save cycle
// ABOUTME: Covers save-or-discard, cancellation, pending-display resolution and lost-update prevention

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dxtr-chat/dxtr/internal/store"
)

func newCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(store.Options{})
	return NewCoordinator(st, nil), st
}

func userMsg(content string) store.Message {
	return store.Message{Role: store.RoleUser, Content: content}
}

func TestRunTurn_PersistsStateAndHistory(t *testing.T) {
	c, st := newCoordinator(t)
	ctx := context.Background()
	key := store.SessionKey{UserID: "alice", SessionID: "s1"}

	result, err := c.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
		assert.Empty(t, history)
		state.HasProfile = true
		state.ProfileContent = "profile"
		return &TurnOutput{
			Response:    "done",
			NewMessages: []store.Message{userMsg("hi"), {Role: store.RoleAssistant, Content: "done"}},
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Response)

	state, err := st.GetState(ctx, key)
	require.NoError(t, err)
	assert.True(t, state.HasProfile)

	history, err := st.GetHistory(ctx, key)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRunTurn_ErrorDiscardsEverything(t *testing.T) {
	c, st := newCoordinator(t)
	ctx := context.Background()
	key := store.SessionKey{UserID: "alice", SessionID: "s1"}

	_, err := c.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
		state.HasProfile = true
		return nil, errors.New("pipeline failed")
	})
	require.Error(t, err)

	state, err := st.GetState(ctx, key)
	require.NoError(t, err)
	assert.False(t, state.HasProfile, "failed turn must not persist state")

	history, err := st.GetHistory(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunTurn_CancellationDiscardsEverything(t *testing.T) {
	c, st := newCoordinator(t)
	key := store.SessionKey{UserID: "alice", SessionID: "s1"}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
		// Client disconnects while the pipeline is running
		cancel()
		state.HasProfile = true
		return &TurnOutput{Response: "late", NewMessages: []store.Message{userMsg("hi")}}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	history, err := st.GetHistory(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, history, "cancelled turn must not persist messages")
}

func TestRunTurn_LockIsFreeAfterFailure(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	key := store.SessionKey{UserID: "alice", SessionID: "s1"}

	_, err := c.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	result, err := c.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
		return &TurnOutput{Response: "recovered"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Response)
}

func TestRunTurn_ResolvesAndClearsPendingDisplay(t *testing.T) {
	c, st := newCoordinator(t)
	ctx := context.Background()
	key := store.SessionKey{UserID: "alice", SessionID: "s1"}

	result, err := c.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
		handle := RegisterArtifact(state, "rankings for today", store.ArtifactRankings)
		err := st.SaveArtifact(ctx, key, &store.Artifact{
			Handle:  handle,
			Content: "# Rankings\n1. ...",
			Meta:    state.Artifacts[handle],
		})
		require.NoError(t, err)
		QueueForDisplay(state, handle)
		return &TurnOutput{Response: "here are your rankings"}, nil
	})
	require.NoError(t, err)

	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "# Rankings\n1. ...", result.Artifacts[0].Content)

	// The display queue is consumed: the persisted state starts clean
	state, err := st.GetState(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, state.PendingDisplay)
	assert.Len(t, state.Artifacts, 1, "registry entry survives display")
}

func TestRunTurn_MissingArtifactContentIsSkipped(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	key := store.SessionKey{UserID: "alice", SessionID: "s1"}

	result, err := c.RunTurn(ctx, key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
		// Registered but content never stored
		handle := RegisterArtifact(state, "half-made artifact", store.ArtifactProfile)
		QueueForDisplay(state, handle)
		return &TurnOutput{Response: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Empty(t, result.Artifacts)
}

func TestRunTurn_ConcurrentTurnsLoseNoUpdate(t *testing.T) {
	c, st := newCoordinator(t)
	key := store.SessionKey{UserID: "alice", SessionID: "s1"}

	const turns = 8
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.RunTurn(context.Background(), key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
				// Read-modify-write on the handle counter: racy without the lock
				RegisterArtifact(state, "artifact", store.ArtifactRankings)
				time.Sleep(time.Millisecond)
				return &TurnOutput{
					Response:    "ok",
					NewMessages: []store.Message{userMsg("turn")},
				}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ctx := context.Background()
	history, err := st.GetHistory(ctx, key)
	require.NoError(t, err)
	assert.Len(t, history, turns, "every turn's message must survive")

	state, err := st.GetState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, turns+1, state.NextHandle, "every handle increment must survive")
	assert.Len(t, state.Artifacts, turns)
}

func TestRunTurn_DifferentSessionsDoNotSerialize(t *testing.T) {
	c, _ := newCoordinator(t)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var wg sync.WaitGroup

	for _, sid := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			key := store.SessionKey{UserID: "alice", SessionID: sid}
			_, err := c.RunTurn(context.Background(), key, func(ctx context.Context, state *store.SessionState, history []store.Message) (*TurnOutput, error) {
				started <- struct{}{}
				<-release
				return &TurnOutput{Response: "ok"}, nil
			})
			assert.NoError(t, err)
		}(sid)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("turns for different sessions blocked each other")
		}
	}
	close(release)
	wg.Wait()
}
