package usecase

import (
	"strings"
	"unicode"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// TokenOverlapReranker reorders the head of a candidate list by blending
// the fused retrieval score with direct query/chunk token overlap. It is
// a cheap stand-in for a cross-encoder and keeps ranking deterministic.
type TokenOverlapReranker struct{}

func (TokenOverlapReranker) Rerank(query string, candidates []domain.ScoredChunk, topN int) []domain.ScoredChunk {
	if len(candidates) == 0 {
		return candidates
	}
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}

	head := make([]domain.ScoredChunk, topN)
	copy(head, candidates[:topN])
	queryTokens := toTokenSet(query)

	minScore, maxScore := head[0].Score, head[0].Score
	for _, c := range head[1:] {
		if c.Score < minScore {
			minScore = c.Score
		}
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	scoreSpan := maxScore - minScore
	normalize := func(v float64) float64 {
		if scoreSpan <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / scoreSpan
	}

	for i := range head {
		overlap := tokenOverlap(queryTokens, toTokenSet(head[i].Chunk.Text))
		sectionHit := sectionTokenHit(queryTokens, head[i].Chunk.Section)
		head[i].Score = 0.60*normalize(head[i].Score) + 0.30*overlap + 0.10*sectionHit
	}

	sortCandidates(head)

	if topN == len(candidates) {
		return head
	}
	out := make([]domain.ScoredChunk, 0, len(candidates))
	out = append(out, head...)
	out = append(out, candidates[topN:]...)
	return out
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func sectionTokenHit(query map[string]struct{}, section string) float64 {
	if len(query) == 0 || section == "" {
		return 0
	}
	section = strings.ToLower(section)
	for token := range query {
		if token == "" {
			continue
		}
		if strings.Contains(section, token) {
			return 1
		}
	}
	return 0
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
