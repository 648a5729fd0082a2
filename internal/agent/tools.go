// ABOUTME: Per-turn tool surface the injected model function drives
// ABOUTME: Ranking with cache reuse, profile synthesis, repo summaries, user facts, artifact display

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dxtr-chat/dxtr/internal/bus"
	"github.com/dxtr-chat/dxtr/internal/rankcache"
	"github.com/dxtr-chat/dxtr/internal/session"
	"github.com/dxtr-chat/dxtr/internal/store"
)

// Paper is one item offered for ranking: the text the scorer sees is the
// title plus abstract.
type Paper struct {
	ID      string
	Title   string
	Summary string
}

// Tools is the tool surface available to the model function for the
// duration of one turn. All mutations go through the turn's session
// state, so they persist only if the turn commits.
type Tools struct {
	key    store.SessionKey
	state  *store.SessionState
	events *bus.Bus

	store    store.Store
	cache    *rankcache.Cache
	scorer   *rankcache.Scorer
	score    rankcache.ScoreFunc
	generate GenerateFunc
	logger   *slog.Logger
}

// RankPapers scores the batch against either the user's synthesized
// profile (empty request) or a free-text request, reusing cached
// rankings when the criteria matches. The rendered tier list is saved as
// an artifact and queued for display; the return value is a short
// summary for the model.
func (t *Tools) RankPapers(ctx context.Context, batchKey, request string, papers []Paper) (string, error) {
	byProfile := strings.TrimSpace(request) == ""
	if byProfile && !t.state.HasProfile {
		return "", fmt.Errorf("no synthesized profile for user %s: synthesize one first or provide ranking criteria", t.key.UserID)
	}

	t.events.Publish(bus.EventTool, fmt.Sprintf("Ranking %d papers for %s", len(papers), batchKey))

	results, fromCache, err := t.rankedResults(ctx, batchKey, request, papers, byProfile)
	if err != nil {
		return "", err
	}

	content := FormatRankingResults(results)
	handle := session.RegisterArtifact(t.state, fmt.Sprintf("paper rankings for %s", batchKey), store.ArtifactRankings)
	if err := t.store.SaveArtifact(ctx, t.key, &store.Artifact{
		Handle:  handle,
		Content: content,
		Meta:    t.state.Artifacts[handle],
	}); err != nil {
		return "", fmt.Errorf("saving rankings artifact: %w", err)
	}
	session.QueueForDisplay(t.state, handle)

	source := "scored"
	if fromCache {
		source = "cached"
	}
	return fmt.Sprintf("Ranked %d papers for %s (%s). Results are queued for display as artifact %d.",
		len(results), batchKey, source, handle), nil
}

func (t *Tools) rankedResults(ctx context.Context, batchKey, request string, papers []Paper, byProfile bool) ([]RankedItem, bool, error) {
	titles := make(map[string]string, len(papers))
	for _, p := range papers {
		titles[p.ID] = p.Title
	}

	var (
		rows []store.RankingRecord
		hit  bool
		err  error
	)
	if byProfile {
		rows, hit, err = t.cache.LookupProfile(ctx, t.key.UserID, batchKey, t.state.ProfileContent)
	} else {
		rows, hit, err = t.cache.LookupRequest(ctx, t.key.UserID, batchKey, request)
	}
	if err != nil {
		// A broken cache read degrades to recomputation
		t.logger.Warn("ranking cache lookup failed", "error", err)
		hit = false
	}
	if hit {
		t.events.Publish(bus.EventStatus, "Reusing cached rankings")
		results := make([]RankedItem, 0, len(rows))
		for _, row := range rows {
			results = append(results, RankedItem{
				ID:     row.ItemID,
				Title:  titles[row.ItemID],
				Score:  row.Score,
				Reason: row.Reason,
			})
		}
		return results, true, nil
	}

	items := make([]rankcache.Item, 0, len(papers))
	for _, p := range papers {
		items = append(items, rankcache.Item{ID: p.ID, Text: p.Title + "\n\n" + p.Summary})
	}
	criteria := request
	if byProfile {
		criteria = t.state.ProfileContent
	}
	scoredItems := t.scorer.ScoreBatch(ctx, criteria, items, t.score)

	if byProfile {
		t.cache.StoreProfile(ctx, t.key.UserID, batchKey, t.state.ProfileContent, scoredItems)
	} else {
		t.cache.StoreRequest(ctx, t.key.UserID, batchKey, request, scoredItems)
	}

	results := make([]RankedItem, 0, len(scoredItems))
	for _, s := range scoredItems {
		results = append(results, RankedItem{
			ID:     s.ItemID,
			Title:  titles[s.ItemID],
			Score:  s.Score,
			Reason: s.Reason,
		})
	}
	return results, false, nil
}

// SynthesizeProfile builds an enriched profile from the seed description
// plus every remembered user fact, stores it in session state and saves
// it as a displayable artifact.
func (t *Tools) SynthesizeProfile(ctx context.Context, seedProfile string) (string, error) {
	t.events.Publish(bus.EventTool, "Synthesizing user profile")

	facts, err := t.store.GetUserFacts(ctx, t.key.UserID)
	if err != nil {
		return "", fmt.Errorf("loading user facts: %w", err)
	}

	input := "Seed profile:\n" + seedProfile
	if len(facts) > 0 {
		input += "\n\nKnown facts:\n"
		for _, f := range facts {
			input += "- " + f.Fact + "\n"
		}
	}

	profile, err := t.generate(ctx, "synthesize-profile", input)
	if err != nil {
		return "", fmt.Errorf("synthesizing profile: %w", err)
	}

	t.state.HasProfile = true
	t.state.ProfileContent = profile

	handle := session.RegisterArtifact(t.state, "synthesized user profile", store.ArtifactProfile)
	if err := t.store.SaveArtifact(ctx, t.key, &store.Artifact{
		Handle:  handle,
		Content: profile,
		Meta:    t.state.Artifacts[handle],
	}); err != nil {
		return "", fmt.Errorf("saving profile artifact: %w", err)
	}
	session.QueueForDisplay(t.state, handle)

	return fmt.Sprintf("Profile synthesized and queued for display as artifact %d.", handle), nil
}

// SummarizeRepository produces a summary of the given repository URL via
// the model function and saves it as a displayable artifact.
func (t *Tools) SummarizeRepository(ctx context.Context, repoURL string) (string, error) {
	t.events.Publish(bus.EventTool, fmt.Sprintf("Summarizing repository %s", repoURL))

	summary, err := t.generate(ctx, "summarize-repository", repoURL)
	if err != nil {
		return "", fmt.Errorf("summarizing repository: %w", err)
	}

	t.state.HasRepoSummary = true

	handle := session.RegisterArtifact(t.state, fmt.Sprintf("summary of %s", repoURL), store.ArtifactRepoSummary)
	if err := t.store.SaveArtifact(ctx, t.key, &store.Artifact{
		Handle:  handle,
		Content: summary,
		Meta:    t.state.Artifacts[handle],
	}); err != nil {
		return "", fmt.Errorf("saving repository summary artifact: %w", err)
	}
	session.QueueForDisplay(t.state, handle)

	return fmt.Sprintf("Repository summarized and queued for display as artifact %d.", handle), nil
}

// RememberFact persists one fact about the user for later profile
// synthesis.
func (t *Tools) RememberFact(ctx context.Context, fact string) error {
	if strings.TrimSpace(fact) == "" {
		return fmt.Errorf("fact must not be empty")
	}
	if _, err := t.store.AddUserFact(ctx, t.key.UserID, fact); err != nil {
		return fmt.Errorf("storing user fact: %w", err)
	}
	return nil
}

// ShowArtifact queues a previously registered artifact for display at
// turn end. Unknown handles are an error so the model can correct itself.
func (t *Tools) ShowArtifact(handle int) error {
	if _, ok := t.state.Artifacts[handle]; !ok {
		return fmt.Errorf("no artifact with handle %d", handle)
	}
	session.QueueForDisplay(t.state, handle)
	return nil
}

// AvailableArtifacts renders the prompt section listing this session's
// artifacts, or an empty string when none exist.
func (t *Tools) AvailableArtifacts() string {
	return session.RenderAvailableArtifacts(t.state)
}

// ShareProgress publishes a free-form status update to the observer.
func (t *Tools) ShareProgress(message string) {
	t.events.Publish(bus.EventStatus, message)
}

// TellUser sends content directly to the user, bypassing the model's
// final narration. Drained at turn end and prepended to the answer.
func (t *Tools) TellUser(content string) {
	t.events.PublishContent(content)
}
