package memindex

import (
	"context"
	"testing"
	"time"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

func doc(id, owner string, uploaded time.Time) *domain.Document {
	return &domain.Document{ID: id, OwnerID: owner, UploadedAt: uploaded}
}

func chunk(docID, owner string, index int, text string, vec []float32) domain.Chunk {
	return domain.Chunk{
		ID:         docID + "-" + text,
		DocumentID: docID,
		OwnerID:    owner,
		Index:      index,
		Text:       text,
		Embedding:  vec,
	}
}

func TestTenantIsolation(t *testing.T) {
	ix := New(2)
	now := time.Now().UTC()

	if err := ix.Index(context.Background(), doc("d1", "alice", now), []domain.Chunk{
		chunk("d1", "alice", 0, "blood pressure reading", []float32{1, 0}),
	}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	// geometrically identical vector for a different tenant
	if err := ix.Index(context.Background(), doc("d2", "bob", now), []domain.Chunk{
		chunk("d2", "bob", 0, "blood pressure reading", []float32{1, 0}),
	}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	hits, err := ix.SearchSemantic(context.Background(), "alice", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	for _, h := range hits {
		if h.Chunk.OwnerID != "alice" || h.Chunk.DocumentID != "d1" {
			t.Fatalf("cross-tenant chunk returned: %+v", h.Chunk)
		}
	}
}

func TestSearchUnknownTenantReturnsIndexUnavailable(t *testing.T) {
	ix := New(2)
	_, err := ix.SearchSemantic(context.Background(), "nobody", []float32{1, 0}, 5)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	_, err = ix.SearchKeyword(context.Background(), "nobody", "anything", 5)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestRemoveCascadesDocumentChunks(t *testing.T) {
	ix := New(2)
	now := time.Now().UTC()
	_ = ix.Index(context.Background(), doc("d1", "alice", now), []domain.Chunk{
		chunk("d1", "alice", 0, "first", []float32{1, 0}),
		chunk("d1", "alice", 1, "second", []float32{0, 1}),
	})
	_ = ix.Index(context.Background(), doc("d2", "alice", now), []domain.Chunk{
		chunk("d2", "alice", 0, "third", []float32{1, 1}),
	})

	if err := ix.Remove(context.Background(), "alice", "d1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	hits, err := ix.SearchSemantic(context.Background(), "alice", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.DocumentID != "d2" {
		t.Fatalf("expected only d2 chunks after removal, got %+v", hits)
	}
}

func TestTieBreakNewestDocumentThenChunkIndex(t *testing.T) {
	ix := New(2)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// all vectors identical, so scores tie exactly
	v := []float32{1, 0}
	_ = ix.Index(context.Background(), doc("old", "alice", older), []domain.Chunk{
		chunk("old", "alice", 0, "a", v),
	})
	_ = ix.Index(context.Background(), doc("new", "alice", newer), []domain.Chunk{
		chunk("new", "alice", 1, "b", v),
		chunk("new", "alice", 0, "c", v),
	})

	hits, err := ix.SearchSemantic(context.Background(), "alice", v, 10)
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Chunk.DocumentID != "new" || hits[0].Chunk.Index != 0 {
		t.Fatalf("expected newest document, lowest chunk index first, got %+v", hits[0].Chunk)
	}
	if hits[1].Chunk.DocumentID != "new" || hits[1].Chunk.Index != 1 {
		t.Fatalf("expected new/1 second, got %+v", hits[1].Chunk)
	}
	if hits[2].Chunk.DocumentID != "old" {
		t.Fatalf("expected oldest document last, got %+v", hits[2].Chunk)
	}
}

func TestKeywordScoreFavorsTermOverlap(t *testing.T) {
	ix := New(2)
	now := time.Now().UTC()
	_ = ix.Index(context.Background(), doc("d1", "alice", now), []domain.Chunk{
		chunk("d1", "alice", 0, "lisinopril dosage increased to 20mg", []float32{1, 0}),
		chunk("d1", "alice", 1, "routine dental cleaning performed", []float32{0, 1}),
	})

	hits, err := ix.SearchKeyword(context.Background(), "alice", "lisinopril dosage", 2)
	if err != nil {
		t.Fatalf("SearchKeyword() error = %v", err)
	}
	if hits[0].Chunk.Index != 0 {
		t.Fatalf("expected overlapping chunk first, got %+v", hits[0].Chunk)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("expected strictly higher keyword score, got %f vs %f", hits[0].Score, hits[1].Score)
	}
	if hits[0].Score < 0 || hits[0].Score > 1 {
		t.Fatalf("keyword score out of [0,1]: %f", hits[0].Score)
	}
}

func TestSearchLimitAndDimensionChecks(t *testing.T) {
	ix := New(2)
	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, 5)
	for i := 0; i < 5; i++ {
		chunks = append(chunks, chunk("d1", "alice", i, "text", []float32{1, 0}))
	}
	_ = ix.Index(context.Background(), doc("d1", "alice", now), chunks)

	hits, err := ix.SearchSemantic(context.Background(), "alice", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("SearchSemantic() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected limit 3, got %d", len(hits))
	}

	if _, err := ix.SearchSemantic(context.Background(), "alice", []float32{1, 0, 0}, 3); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for wrong dimension, got %v", err)
	}
	if err := ix.Index(context.Background(), doc("d2", "alice", now), []domain.Chunk{
		chunk("d2", "alice", 0, "bad", []float32{1}),
	}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for wrong chunk dimension, got %v", err)
	}
}

func TestConcurrentSearchDuringMutation(t *testing.T) {
	ix := New(2)
	now := time.Now().UTC()
	_ = ix.Index(context.Background(), doc("d1", "alice", now), []domain.Chunk{
		chunk("d1", "alice", 0, "stable", []float32{1, 0}),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = ix.Index(context.Background(), doc("extra", "alice", now), []domain.Chunk{
				chunk("extra", "alice", i, "x", []float32{0, 1}),
			})
			_ = ix.Remove(context.Background(), "alice", "extra")
		}
	}()

	for i := 0; i < 200; i++ {
		hits, err := ix.SearchSemantic(context.Background(), "alice", []float32{1, 0}, 100)
		if err != nil {
			t.Fatalf("SearchSemantic() error = %v", err)
		}
		// d1 is never removed, so every snapshot must contain it
		found := false
		for _, h := range hits {
			if h.Chunk.DocumentID == "d1" {
				found = true
			}
		}
		if !found {
			t.Fatalf("snapshot lost a document that was never removed")
		}
	}
	<-done
}
