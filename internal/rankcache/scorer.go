// ABOUTME: Concurrent batch scorer driving an injected per-item score function
// ABOUTME: Bounded worker pool, per-item failure tolerance, score-descending results

package rankcache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dxtr-chat/dxtr/internal/bus"
)

// DefaultWorkers bounds concurrent score calls per batch.
const DefaultWorkers = 8

// MaxReasonLength caps the stored justification for a score.
const MaxReasonLength = 100

// Item is one unit to score: an opaque ID plus the text the score
// function sees.
type Item struct {
	ID   string
	Text string
}

// ScoredItem is the outcome for one item. Failed items carry score 0
// with the error text as the reason.
type ScoredItem struct {
	ItemID string
	Score  int
	Reason string
}

// ScoreFunc rates one item against the criteria, returning a relevance
// score in 1..5 and a short justification. The model call lives behind
// this function.
type ScoreFunc func(ctx context.Context, criteria string, item Item) (score int, reason string, err error)

// Scorer runs score functions over item batches with bounded
// concurrency, reporting progress on an optional event bus.
type Scorer struct {
	workers int
	events  *bus.Bus
	logger  *slog.Logger
}

// NewScorer creates a scorer with the given pool size (DefaultWorkers if
// <= 0). The bus may be nil when no observer is listening.
func NewScorer(workers int, events *bus.Bus, logger *slog.Logger) *Scorer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		workers: workers,
		events:  events,
		logger:  logger.With("component", "scorer"),
	}
}

// ScoreBatch scores every item against the criteria. Individual failures
// never abort the batch: the item gets score 0 with the error text as
// its reason and a warning event. Results come back sorted by score
// descending, item ID ascending on ties, matching the cache read order.
func (s *Scorer) ScoreBatch(ctx context.Context, criteria string, items []Item, score ScoreFunc) []ScoredItem {
	results := make([]ScoredItem, len(items))

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.scoreOne(ctx, criteria, item, score)
			if n := done.Add(1); s.events != nil && n%5 == 0 {
				s.events.Publish(bus.EventProgress, fmt.Sprintf("Scored %d/%d items", n, len(items)))
			}
			return nil
		})
	}
	// Workers never return errors; failures are recorded per item
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})
	return results
}

func (s *Scorer) scoreOne(ctx context.Context, criteria string, item Item, score ScoreFunc) ScoredItem {
	value, reason, err := score(ctx, criteria, item)
	if err != nil {
		s.logger.Warn("scoring failed", "item_id", item.ID, "error", err)
		if s.events != nil {
			s.events.Publish(bus.EventError, fmt.Sprintf("Failed to score %s: %v", item.ID, err))
		}
		return ScoredItem{ItemID: item.ID, Score: 0, Reason: truncateReason(err.Error())}
	}
	return ScoredItem{ItemID: item.ID, Score: clampScore(value), Reason: truncateReason(reason)}
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 5 {
		return 5
	}
	return score
}

func truncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= MaxReasonLength {
		return reason
	}
	runes := []rune(reason)
	return string(runes[:MaxReasonLength])
}
