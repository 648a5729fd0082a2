// ABOUTME: Text normalization, criteria hashing and token-set Jaccard similarity
// ABOUTME: Backs both the exact (hash) and fuzzy (similarity) cache lookups

package rankcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SimilarityThreshold is the minimum token-set Jaccard score for a stored
// free-text criteria to count as a cache hit for a new request.
const SimilarityThreshold = 0.6

// stopwords are filler tokens that carry no ranking intent. Dropping them
// lets "papers about diffusion models" match "diffusion model papers".
var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "an": {}, "and": {}, "are": {}, "find": {},
	"for": {}, "in": {}, "is": {}, "me": {}, "my": {}, "of": {},
	"on": {}, "or": {}, "show": {}, "some": {}, "that": {}, "the": {},
	"to": {}, "with": {},
}

// Normalize lowercases text and collapses all whitespace runs to single
// spaces so that cosmetic differences never defeat the exact cache.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// HashCriteria returns the hex SHA-256 of the normalized criteria text.
func HashCriteria(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// tokenSet splits text into lowercase tokens, strips punctuation at token
// edges, drops stopwords and folds trivial plurals ("models" -> "model").
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
			tok = tok[:len(tok)-1]
		}
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard computes token-set similarity between two strings: intersection
// size over union size after normalization. Two texts with no ranking
// tokens at all are treated as identical.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
