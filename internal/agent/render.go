// ABOUTME: Markdown rendering of ranking results, tiered by relevance score
// ABOUTME: Produces the content body of rankings artifacts

package agent

import "fmt"

// RankedItem is one scored item ready for display.
type RankedItem struct {
	ID     string
	Title  string
	Score  int
	Reason string
}

// scoreTier names the display section for a 1-5 relevance score. Failed
// items (score 0) land in the bottom tier.
func scoreTier(score int) string {
	switch {
	case score >= 5:
		return "Must Read"
	case score == 4:
		return "Highly Relevant"
	case score == 3:
		return "Moderately Relevant"
	case score == 2:
		return "Low Relevance"
	default:
		return "Not Relevant"
	}
}

// FormatRankingResults renders results (already sorted by score
// descending) as tiered markdown: a section per tier, each item with its
// score, justification and ID.
func FormatRankingResults(results []RankedItem) string {
	if len(results) == 0 {
		return "No papers ranked."
	}

	out := "# Paper Rankings\n\n"
	currentTier := ""
	for _, r := range results {
		if tier := scoreTier(r.Score); tier != currentTier {
			currentTier = tier
			out += fmt.Sprintf("## %s\n\n", tier)
		}
		title := r.Title
		if title == "" {
			title = r.ID
		}
		out += fmt.Sprintf("**[%d/5]** %s\n  - %s\n  - `%s`\n\n", r.Score, title, r.Reason, r.ID)
	}
	return out
}
