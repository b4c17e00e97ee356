package domain

type ChunkingStrategy string

const (
	StrategyFixed    ChunkingStrategy = "fixed"
	StrategySentence ChunkingStrategy = "sentence"
	StrategySemantic ChunkingStrategy = "semantic"
)

// ChunkingConfig is the enumerated parameter set for one chunking pass.
// Size and Overlap are rune counts.
type ChunkingConfig struct {
	Strategy ChunkingStrategy
	Size     int
	Overlap  int
}

// Chunk is a contiguous span of a document's normalized text, the unit of
// indexing and retrieval. Start/End are rune offsets forming the span
// [Start,End); Text is always the literal text of that span, so any
// substring of Text is grounded in the source document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	Index      int       `json:"chunk_index"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Text       string    `json:"text"`
	Section    string    `json:"section,omitempty"`
	Page       int       `json:"page,omitempty"`
	Embedding  []float32 `json:"-"`
}
