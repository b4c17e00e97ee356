package memindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// Index is an in-process vector index hard-partitioned by tenant (record
// owner). Each tenant holds an immutable snapshot slice that mutations
// replace wholesale: searches read whichever snapshot was current when they
// started and never observe a half-applied mutation. Mutations for one
// tenant are serialized; searches never block each other.
type Index struct {
	dim int

	mu      sync.RWMutex
	tenants map[string]*tenant
}

type tenant struct {
	writeMu sync.Mutex // serializes Index/Remove for this tenant

	snapMu sync.RWMutex
	snap   []entry
}

type entry struct {
	chunk      domain.Chunk
	uploadedAt time.Time
	norm       float64
	termFreq   map[string]float64
}

func New(dimension int) *Index {
	return &Index{
		dim:     dimension,
		tenants: make(map[string]*tenant),
	}
}

func (ix *Index) Dimension() int { return ix.dim }

func (ix *Index) Index(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.OwnerID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "index chunks", fmt.Errorf("document owner missing"))
	}
	for i := range chunks {
		if len(chunks[i].Embedding) != ix.dim {
			return domain.WrapError(domain.ErrInvalidInput, "index chunks",
				fmt.Errorf("chunk %d vector size %d, index dimension %d", chunks[i].Index, len(chunks[i].Embedding), ix.dim))
		}
	}

	tn := ix.tenant(doc.OwnerID, true)
	tn.writeMu.Lock()
	defer tn.writeMu.Unlock()

	current := tn.snapshot()
	next := make([]entry, 0, len(current)+len(chunks))
	next = append(next, current...)
	for i := range chunks {
		next = append(next, entry{
			chunk:      chunks[i],
			uploadedAt: doc.UploadedAt,
			norm:       vectorNorm(chunks[i].Embedding),
			termFreq:   termFrequencies(chunks[i].Text),
		})
	}
	tn.swap(next)
	return nil
}

func (ix *Index) Remove(ctx context.Context, ownerID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tn := ix.tenant(ownerID, false)
	if tn == nil {
		return nil
	}
	tn.writeMu.Lock()
	defer tn.writeMu.Unlock()

	current := tn.snapshot()
	next := make([]entry, 0, len(current))
	for _, e := range current {
		if e.chunk.DocumentID != documentID {
			next = append(next, e)
		}
	}
	tn.swap(next)
	return nil
}

func (ix *Index) SearchSemantic(ctx context.Context, ownerID string, queryVector []float32, limit int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tn := ix.tenant(ownerID, false)
	if tn == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "semantic search", fmt.Errorf("no index for tenant"))
	}
	if len(queryVector) != ix.dim {
		return nil, domain.WrapError(domain.ErrInvalidInput, "semantic search",
			fmt.Errorf("query vector size %d, index dimension %d", len(queryVector), ix.dim))
	}

	snap := tn.snapshot()
	queryNorm := vectorNorm(queryVector)
	out := make([]domain.ScoredChunk, 0, len(snap))
	for _, e := range snap {
		out = append(out, domain.ScoredChunk{
			Chunk:      e.chunk,
			Score:      cosine(queryVector, queryNorm, e.chunk.Embedding, e.norm),
			UploadedAt: e.uploadedAt,
		})
	}
	rankAndTrim(out, limit)
	return trim(out, limit), nil
}

func (ix *Index) SearchKeyword(ctx context.Context, ownerID, queryText string, limit int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tn := ix.tenant(ownerID, false)
	if tn == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "keyword search", fmt.Errorf("no index for tenant"))
	}

	queryTerms := tokenize(queryText)
	snap := tn.snapshot()
	out := make([]domain.ScoredChunk, 0, len(snap))
	for _, e := range snap {
		out = append(out, domain.ScoredChunk{
			Chunk:      e.chunk,
			Score:      termOverlapScore(queryTerms, e.termFreq),
			UploadedAt: e.uploadedAt,
		})
	}
	rankAndTrim(out, limit)
	return trim(out, limit), nil
}

func (ix *Index) tenant(ownerID string, create bool) *tenant {
	ix.mu.RLock()
	tn := ix.tenants[ownerID]
	ix.mu.RUnlock()
	if tn != nil || !create {
		return tn
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if tn = ix.tenants[ownerID]; tn == nil {
		tn = &tenant{}
		ix.tenants[ownerID] = tn
	}
	return tn
}

func (t *tenant) snapshot() []entry {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.snap
}

func (t *tenant) swap(next []entry) {
	t.snapMu.Lock()
	t.snap = next
	t.snapMu.Unlock()
}

// rankAndTrim orders candidates by score descending, breaking ties by most
// recent document upload time, then ascending chunk index, then document id.
func rankAndTrim(chunks []domain.ScoredChunk, _ int) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if !chunks[i].UploadedAt.Equal(chunks[j].UploadedAt) {
			return chunks[i].UploadedAt.After(chunks[j].UploadedAt)
		}
		if chunks[i].Chunk.Index != chunks[j].Chunk.Index {
			return chunks[i].Chunk.Index < chunks[j].Chunk.Index
		}
		return chunks[i].Chunk.DocumentID < chunks[j].Chunk.DocumentID
	})
}

func trim(chunks []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(q []float32, qNorm float64, v []float32, vNorm float64) float64 {
	if qNorm == 0 || vNorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qNorm * vNorm)
}
