package domain

import "time"

type RetrievalMode string

const (
	ModeSemantic RetrievalMode = "semantic"
	ModeKeyword  RetrievalMode = "keyword"
	ModeHybrid   RetrievalMode = "hybrid"
)

// ScoredChunk is one retrieval candidate. UploadedAt carries the owning
// document's upload time for the deterministic tie-break during ranking.
type ScoredChunk struct {
	Chunk      Chunk     `json:"chunk"`
	Score      float64   `json:"score"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Citation ties one generated claim back to a chunk. Excerpt is copied
// verbatim from the chunk's text; callers must keep it a literal substring
// of that text.
type Citation struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Excerpt    string `json:"excerpt"`
}

// Answer is the write-once result of one query. Confidence is the fraction
// of factual claims in Text that carry a matching citation. Degraded marks
// the citation-only fallback produced when generation fails. Mode records
// the retrieval mode of the policy that produced the answer.
type Answer struct {
	ID             string        `json:"id"`
	OwnerID        string        `json:"owner_id"`
	Mode           RetrievalMode `json:"mode,omitempty"`
	Text           string        `json:"text"`
	Citations      []Citation    `json:"citations"`
	Confidence     float64       `json:"confidence"`
	SourceChunkIDs []string      `json:"source_chunk_ids"`
	Degraded       bool          `json:"degraded,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// QueryRequest is the single query operation exposed at the core boundary.
type QueryRequest struct {
	RequesterID string      `json:"requester_id"`
	OwnerID     string      `json:"owner_id"`
	Scope       AccessScope `json:"scope"`
	Question    string      `json:"question"`
	TopK        int         `json:"top_k,omitempty"`
}
