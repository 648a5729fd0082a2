// ABOUTME: Tests for the exact and fuzzy ranking cache over the in-memory store
// ABOUTME: Covers hash hits, similarity hits, misses, idempotent stores and tie-breaking

package rankcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dxtr-chat/dxtr/internal/store"
)

func newTestCache(t *testing.T) (*Cache, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(store.Options{})
	return New(st, 0, nil), st
}

func scored(ids ...string) []ScoredItem {
	out := make([]ScoredItem, 0, len(ids))
	for i, id := range ids {
		out = append(out, ScoredItem{ItemID: id, Score: 5 - i, Reason: "relevant"})
	}
	return out
}

func TestLookupProfile_MissOnEmptyCache(t *testing.T) {
	c, _ := newTestCache(t)

	rows, hit, err := c.LookupProfile(context.Background(), "alice", "2025-01-30", "likes diffusion models")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, rows)
}

func TestLookupProfile_HitAfterStore(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreProfile(ctx, "alice", "2025-01-30", "likes diffusion models", scored("2501.003", "2501.001", "2501.002"))

	rows, hit, err := c.LookupProfile(ctx, "alice", "2025-01-30", "likes diffusion models")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, rows, 3)
	// Sorted by score descending
	assert.Equal(t, "2501.003", rows[0].ItemID)
	assert.Equal(t, 5, rows[0].Score)
	assert.Equal(t, 3, rows[2].Score)
}

func TestLookupProfile_HitOnCosmeticVariant(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreProfile(ctx, "alice", "2025-01-30", "likes diffusion models", scored("2501.001"))

	_, hit, err := c.LookupProfile(ctx, "alice", "2025-01-30", "  Likes   Diffusion\tModels ")
	require.NoError(t, err)
	assert.True(t, hit, "normalization must absorb case and whitespace differences")
}

func TestLookupProfile_MissOnDifferentProfile(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreProfile(ctx, "alice", "2025-01-30", "likes diffusion models", scored("2501.001"))

	_, hit, err := c.LookupProfile(ctx, "alice", "2025-01-30", "likes distributed systems")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLookupProfile_ScopedToUserAndBatch(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreProfile(ctx, "alice", "2025-01-30", "likes diffusion models", scored("2501.001"))

	_, hit, err := c.LookupProfile(ctx, "bob", "2025-01-30", "likes diffusion models")
	require.NoError(t, err)
	assert.False(t, hit, "other users must not see alice's cache")

	_, hit, err = c.LookupProfile(ctx, "alice", "2025-01-31", "likes diffusion models")
	require.NoError(t, err)
	assert.False(t, hit, "other batches must not hit")
}

func TestStoreProfile_Idempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreProfile(ctx, "alice", "2025-01-30", "likes diffusion models", scored("2501.001"))
	// Second store with a different score must not overwrite or duplicate
	c.StoreProfile(ctx, "alice", "2025-01-30", "likes diffusion models", []ScoredItem{
		{ItemID: "2501.001", Score: 1, Reason: "changed my mind"},
	})

	rows, hit, err := c.LookupProfile(ctx, "alice", "2025-01-30", "likes diffusion models")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].Score, "first stored score wins")
}

func TestLookupRequest_FuzzyHitOnRephrasing(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreRequest(ctx, "alice", "2025-01-30", "papers about diffusion models", scored("2501.002", "2501.001"))

	rows, hit, err := c.LookupRequest(ctx, "alice", "2025-01-30", "diffusion model papers")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Len(t, rows, 2)
	assert.Equal(t, "2501.002", rows[0].ItemID)
}

func TestLookupRequest_MissOnDifferentTopic(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreRequest(ctx, "alice", "2025-01-30", "papers about diffusion models", scored("2501.001"))

	_, hit, err := c.LookupRequest(ctx, "alice", "2025-01-30", "papers about distributed databases")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLookupRequest_BestMatchWins(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreRequest(ctx, "alice", "2025-01-30", "reinforcement learning papers", scored("2501.010"))
	c.StoreRequest(ctx, "alice", "2025-01-30", "diffusion model papers for image generation", scored("2501.020"))

	rows, hit, err := c.LookupRequest(ctx, "alice", "2025-01-30", "diffusion model papers image generation")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, rows, 1)
	assert.Equal(t, "2501.020", rows[0].ItemID)
}

func TestLookupRequest_FirstMatchWinsOnTie(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// Two stored criteria identical after normalization: equal similarity
	c.StoreRequest(ctx, "alice", "2025-01-30", "diffusion model papers", scored("2501.001"))
	c.StoreRequest(ctx, "alice", "2025-01-30", "Diffusion Model Papers", scored("2501.002"))

	rows, hit, err := c.LookupRequest(ctx, "alice", "2025-01-30", "diffusion model papers")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, rows, 1)
	assert.Equal(t, "2501.001", rows[0].ItemID, "earliest stored criteria wins ties")
}

func TestLookupRequest_MissOnEmptyCache(t *testing.T) {
	c, _ := newTestCache(t)

	_, hit, err := c.LookupRequest(context.Background(), "alice", "2025-01-30", "anything")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStoreRequest_RowsAreAdditive(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.StoreRequest(ctx, "alice", "2025-01-30", "diffusion papers", scored("2501.001"))
	c.StoreRequest(ctx, "alice", "2025-01-30", "rlhf papers please", scored("2501.002"))

	rows, hit, err := c.LookupRequest(ctx, "alice", "2025-01-30", "diffusion papers")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, rows, 1, "each criteria keeps its own row set")
	assert.Equal(t, "2501.001", rows[0].ItemID)
}

func TestStore_EmptyBatchIsNoOp(t *testing.T) {
	c, st := newTestCache(t)
	ctx := context.Background()

	c.StoreProfile(ctx, "alice", "2025-01-30", "likes diffusion models", nil)

	criteria, err := st.ListRequestCriteria(ctx, "alice", "2025-01-30")
	require.NoError(t, err)
	assert.Empty(t, criteria)
}
