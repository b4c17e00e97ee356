package memindex

import (
	"strings"
	"unicode"
)

// BM25-style term-frequency saturation constant.
const bm25K1 = 1.2

func termFrequencies(text string) map[string]float64 {
	tokens := tokenize(text)
	tf := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		tf[token]++
	}
	return tf
}

// termOverlapScore is a normalized term-overlap score in [0,1): the mean
// saturated term weight across the query's distinct terms.
func termOverlapScore(queryTerms []string, tf map[string]float64) float64 {
	if len(queryTerms) == 0 || len(tf) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(queryTerms))
	var sum float64
	distinct := 0
	for _, term := range queryTerms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		distinct++
		freq := tf[term]
		if freq == 0 {
			continue
		}
		// saturates toward bm25K1+1 with rising frequency
		sum += (freq * (bm25K1 + 1.0)) / (freq + bm25K1) / (bm25K1 + 1.0)
	}
	return sum / float64(distinct)
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
