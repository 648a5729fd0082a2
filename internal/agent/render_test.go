// ABOUTME: Tests for tiered ranking markdown rendering
// ABOUTME: Covers tier boundaries, ordering, title fallback and the empty case

package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRankingResults_Empty(t *testing.T) {
	assert.Equal(t, "No papers ranked.", FormatRankingResults(nil))
}

func TestFormatRankingResults_TiersInOrder(t *testing.T) {
	out := FormatRankingResults([]RankedItem{
		{ID: "2501.001", Title: "Scaling Diffusion", Score: 5, Reason: "core interest"},
		{ID: "2501.002", Title: "RLHF Tricks", Score: 4, Reason: "adjacent"},
		{ID: "2501.003", Title: "Graph Layouts", Score: 2, Reason: "off-topic"},
		{ID: "2501.004", Title: "Broken Paper", Score: 0, Reason: "model timeout"},
	})

	assert.True(t, strings.HasPrefix(out, "# Paper Rankings"))

	mustRead := strings.Index(out, "## Must Read")
	high := strings.Index(out, "## Highly Relevant")
	low := strings.Index(out, "## Low Relevance")
	notRel := strings.Index(out, "## Not Relevant")
	assert.True(t, mustRead >= 0 && mustRead < high && high < low && low < notRel,
		"tier sections must appear in score order")

	assert.Contains(t, out, "**[5/5]** Scaling Diffusion")
	assert.Contains(t, out, "- core interest")
	assert.Contains(t, out, "`2501.001`")
	assert.Contains(t, out, "**[0/5]** Broken Paper")
}

func TestFormatRankingResults_OneSectionPerTier(t *testing.T) {
	out := FormatRankingResults([]RankedItem{
		{ID: "a", Title: "A", Score: 3, Reason: "r"},
		{ID: "b", Title: "B", Score: 3, Reason: "r"},
	})
	assert.Equal(t, 1, strings.Count(out, "## Moderately Relevant"))
}

func TestFormatRankingResults_TitleFallsBackToID(t *testing.T) {
	out := FormatRankingResults([]RankedItem{
		{ID: "2501.009", Score: 3, Reason: "r"},
	})
	assert.Contains(t, out, "**[3/5]** 2501.009")
}
