package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

const (
	defaultSemanticWeight = 0.6
	defaultKeywordWeight  = 0.4

	// rerankPoolFactor sizes the candidate pool fetched from the index so
	// the rerank pass has more than top_k entries to reorder.
	rerankPoolFactor = 3
)

// RetrievalEngine turns a question into a ranked, deduplicated candidate
// set, scoped to one owner's index.
type RetrievalEngine struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	reranker ports.Reranker

	semanticWeight float64
	keywordWeight  float64
}

type RetrievalOption func(*RetrievalEngine)

// WithFusionWeights overrides the hybrid weights. Weights must be
// non-negative and sum to a positive value.
func WithFusionWeights(semantic, keyword float64) RetrievalOption {
	return func(e *RetrievalEngine) {
		if semantic >= 0 && keyword >= 0 && semantic+keyword > 0 {
			e.semanticWeight = semantic
			e.keywordWeight = keyword
		}
	}
}

// WithReranker installs a secondary scorer over the candidate head. A nil
// reranker leaves ranking untouched.
func WithReranker(reranker ports.Reranker) RetrievalOption {
	return func(e *RetrievalEngine) {
		e.reranker = reranker
	}
}

func NewRetrievalEngine(embedder ports.Embedder, index ports.VectorIndex, options ...RetrievalOption) *RetrievalEngine {
	engine := &RetrievalEngine{
		embedder:       embedder,
		index:          index,
		semanticWeight: defaultSemanticWeight,
		keywordWeight:  defaultKeywordWeight,
	}
	for _, opt := range options {
		opt(engine)
	}
	return engine
}

// Search returns at most policy.TopK candidates. The tenant with no index
// yet surfaces domain.ErrIndexUnavailable; callers treat that as nothing
// to search.
func (e *RetrievalEngine) Search(ctx context.Context, ownerID, query string, policy domain.RetrievalPolicy) ([]domain.ScoredChunk, error) {
	if policy.TopK <= 0 {
		return nil, nil
	}
	pool := policy.TopK * rerankPoolFactor

	var candidates []domain.ScoredChunk
	var err error
	switch policy.Mode {
	case domain.ModeSemantic:
		candidates, err = e.searchSemantic(ctx, ownerID, query, pool)
	case domain.ModeKeyword:
		candidates, err = e.index.SearchKeyword(ctx, ownerID, query, pool)
	case domain.ModeHybrid:
		candidates, err = e.searchHybrid(ctx, ownerID, query, pool)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "search",
			fmt.Errorf("unknown retrieval mode %q", policy.Mode))
	}
	if err != nil {
		return nil, err
	}

	// The index already partitions by tenant; re-assert it here so a
	// backend bug can never leak another owner's chunk past this boundary.
	candidates = filterOwner(candidates, ownerID)
	sortCandidates(candidates)

	if e.reranker != nil {
		candidates = e.reranker.Rerank(query, candidates, pool)
	}
	if len(candidates) > policy.TopK {
		candidates = candidates[:policy.TopK]
	}
	return candidates, nil
}

func (e *RetrievalEngine) searchSemantic(ctx context.Context, ownerID, query string, limit int) ([]domain.ScoredChunk, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.index.SearchSemantic(ctx, ownerID, vector, limit)
}

// searchHybrid fuses semantic and keyword lists with a weighted sum over
// min-max normalized scores. Chunks found by both lists fuse into one
// candidate keyed by chunk id.
func (e *RetrievalEngine) searchHybrid(ctx context.Context, ownerID, query string, limit int) ([]domain.ScoredChunk, error) {
	semantic, err := e.searchSemantic(ctx, ownerID, query, limit)
	if err != nil {
		return nil, err
	}
	keyword, err := e.index.SearchKeyword(ctx, ownerID, query, limit)
	if err != nil {
		return nil, err
	}

	normalizeScores(semantic)
	normalizeScores(keyword)

	type fused struct {
		candidate domain.ScoredChunk
		score     float64
	}
	acc := make(map[string]fused, len(semantic)+len(keyword))
	add := func(list []domain.ScoredChunk, weight float64) {
		for _, c := range list {
			key := c.Chunk.ID
			entry, seen := acc[key]
			if !seen {
				entry.candidate = c
			}
			entry.score += weight * c.Score
			acc[key] = entry
		}
	}
	add(semantic, e.semanticWeight)
	add(keyword, e.keywordWeight)

	out := make([]domain.ScoredChunk, 0, len(acc))
	for _, f := range acc {
		candidate := f.candidate
		candidate.Score = f.score
		out = append(out, candidate)
	}
	return out, nil
}

func normalizeScores(list []domain.ScoredChunk) {
	if len(list) == 0 {
		return
	}
	min, max := list[0].Score, list[0].Score
	for _, c := range list[1:] {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	span := max - min
	for i := range list {
		if span <= 0 {
			list[i].Score = 1
			continue
		}
		list[i].Score = (list[i].Score - min) / span
	}
}

// sortCandidates applies the deterministic ordering: score descending,
// newest document first, then ascending chunk index, then document id.
func sortCandidates(list []domain.ScoredChunk) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		if !list[i].UploadedAt.Equal(list[j].UploadedAt) {
			return list[i].UploadedAt.After(list[j].UploadedAt)
		}
		if list[i].Chunk.Index != list[j].Chunk.Index {
			return list[i].Chunk.Index < list[j].Chunk.Index
		}
		return list[i].Chunk.DocumentID < list[j].Chunk.DocumentID
	})
}

func filterOwner(list []domain.ScoredChunk, ownerID string) []domain.ScoredChunk {
	out := list[:0]
	for _, c := range list {
		if c.Chunk.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out
}
