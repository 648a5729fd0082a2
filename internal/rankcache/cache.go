// ABOUTME: Ranking cache over the persistent ranking store
// ABOUTME: Exact profile lookups by criteria hash, fuzzy request lookups by Jaccard similarity

package rankcache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dxtr-chat/dxtr/internal/store"
)

// Cache answers "have we already scored this batch for this criteria?"
// before any model call is made. Profile criteria match exactly by hash;
// free-text request criteria match fuzzily by token similarity.
type Cache struct {
	store     store.RankingStore
	threshold float64
	logger    *slog.Logger
}

// New creates a cache over the given ranking store. A threshold <= 0
// falls back to SimilarityThreshold.
func New(st store.RankingStore, threshold float64, logger *slog.Logger) *Cache {
	if threshold <= 0 {
		threshold = SimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:     st,
		threshold: threshold,
		logger:    logger.With("component", "rankcache"),
	}
}

// LookupProfile checks for cached profile-based rankings. The profile
// text is normalized and hashed; only an exact hash match counts. The
// boolean reports a hit; rows come back sorted by score descending.
func (c *Cache) LookupProfile(ctx context.Context, userID, batchKey, profileText string) ([]store.RankingRecord, bool, error) {
	hash := HashCriteria(profileText)
	rows, err := c.store.GetRankingsByHash(ctx, userID, batchKey, hash)
	if err != nil {
		return nil, false, fmt.Errorf("looking up profile rankings: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	c.logger.Debug("profile cache hit",
		"user_id", userID,
		"batch_key", batchKey,
		"rows", len(rows))
	return rows, true, nil
}

// LookupRequest checks for cached rankings under a previously used
// free-text criteria similar to the request. All stored criteria for
// (user, batch) are compared by token-set Jaccard; the best match at or
// above the threshold wins, with ties going to the earliest stored
// criteria so repeated lookups are deterministic.
func (c *Cache) LookupRequest(ctx context.Context, userID, batchKey, request string) ([]store.RankingRecord, bool, error) {
	criteria, err := c.store.ListRequestCriteria(ctx, userID, batchKey)
	if err != nil {
		return nil, false, fmt.Errorf("listing request criteria: %w", err)
	}

	best := ""
	bestScore := 0.0
	for _, cand := range criteria {
		score := Jaccard(request, cand)
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}
	if bestScore < c.threshold {
		return nil, false, nil
	}

	rows, err := c.store.GetRankingsByCriteria(ctx, userID, batchKey, best)
	if err != nil {
		return nil, false, fmt.Errorf("looking up request rankings: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	c.logger.Debug("request cache hit",
		"user_id", userID,
		"batch_key", batchKey,
		"similarity", bestScore,
		"rows", len(rows))
	return rows, true, nil
}

// StoreProfile persists freshly computed profile-based rankings. The
// criteria hash is derived here so callers never hash inconsistently.
// A failure is logged and swallowed: the cache is an optimization and
// must never fail the turn that produced the scores.
func (c *Cache) StoreProfile(ctx context.Context, userID, batchKey, profileText string, results []ScoredItem) {
	hash := HashCriteria(profileText)
	rows := make([]store.RankingRecord, 0, len(results))
	for _, r := range results {
		rows = append(rows, store.RankingRecord{
			UserID:       userID,
			ItemID:       r.ItemID,
			BatchKey:     batchKey,
			CriteriaType: store.CriteriaProfile,
			CriteriaText: profileText,
			CriteriaHash: hash,
			Score:        r.Score,
			Reason:       r.Reason,
		})
	}
	c.save(ctx, rows)
}

// StoreRequest persists rankings computed for an ad-hoc free-text
// request. Rows are additive: each distinct request leaves its own set.
func (c *Cache) StoreRequest(ctx context.Context, userID, batchKey, request string, results []ScoredItem) {
	rows := make([]store.RankingRecord, 0, len(results))
	for _, r := range results {
		rows = append(rows, store.RankingRecord{
			UserID:       userID,
			ItemID:       r.ItemID,
			BatchKey:     batchKey,
			CriteriaType: store.CriteriaRequest,
			CriteriaText: request,
			Score:        r.Score,
			Reason:       r.Reason,
		})
	}
	c.save(ctx, rows)
}

func (c *Cache) save(ctx context.Context, rows []store.RankingRecord) {
	if len(rows) == 0 {
		return
	}
	if err := c.store.SaveRankings(ctx, rows); err != nil {
		c.logger.Warn("failed to cache rankings", "error", err, "rows", len(rows))
	}
}
