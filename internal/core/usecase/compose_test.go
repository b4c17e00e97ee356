package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

type composeGeneratorFake struct {
	reply  string
	err    error
	prompt string
}

func (f *composeGeneratorFake) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func labChunks() []domain.ScoredChunk {
	return []domain.ScoredChunk{
		{
			Chunk: domain.Chunk{
				ID:         "c1",
				DocumentID: "d1",
				Text:       "Hemoglobin was measured at 13.5 g/dL. Result is within the reference range.",
			},
			Score: 0.9,
		},
		{
			Chunk: domain.Chunk{
				ID:         "c2",
				DocumentID: "d1",
				Text:       "Patient takes lisinopril 10mg daily for blood pressure.",
			},
			Score: 0.7,
		},
	}
}

func TestComposeCitationsAreLiteralSubstrings(t *testing.T) {
	gen := &composeGeneratorFake{
		reply: "Your hemoglobin was measured at 13.5 g/dL. " +
			"You take lisinopril 10mg daily for blood pressure.",
	}
	composer := NewComposer(gen, 0)
	chunks := labChunks()

	answer, err := composer.Compose(context.Background(), "what are my hemoglobin levels", "o-1", chunks, NormalPolicy())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if len(answer.Citations) == 0 {
		t.Fatal("expected citations")
	}
	byID := map[string]string{}
	for _, sc := range chunks {
		byID[sc.Chunk.ID] = sc.Chunk.Text
	}
	for _, c := range answer.Citations {
		source, ok := byID[c.ChunkID]
		if !ok {
			t.Fatalf("citation references unknown chunk %s", c.ChunkID)
		}
		if !strings.Contains(source, c.Excerpt) {
			t.Fatalf("excerpt %q is not a substring of chunk %s", c.Excerpt, c.ChunkID)
		}
	}
	if answer.Confidence <= 0 || answer.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", answer.Confidence)
	}
	if len(answer.SourceChunkIDs) != 2 {
		t.Fatalf("expected both chunks supplied to the model, got %v", answer.SourceChunkIDs)
	}
}

func TestComposeUnsupportedClaimLowersConfidence(t *testing.T) {
	gen := &composeGeneratorFake{
		reply: "Your hemoglobin was measured at 13.5 g/dL. " +
			"You are due for a tetanus booster next month.",
	}
	composer := NewComposer(gen, 0)

	answer, err := composer.Compose(context.Background(), "labs", "o-1", labChunks(), NormalPolicy())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if answer.Confidence >= 1 {
		t.Fatalf("invented claim must lower confidence, got %f", answer.Confidence)
	}
	if !strings.Contains(answer.Text, "tetanus") {
		t.Fatal("unsupported claim must stay in the text, not be dropped")
	}
}

func TestComposeFallsBackOnGeneratorFailure(t *testing.T) {
	gen := &composeGeneratorFake{err: errors.New("model timeout")}
	composer := NewComposer(gen, 0)
	chunks := labChunks()

	answer, err := composer.Compose(context.Background(), "labs", "o-1", chunks, NormalPolicy())
	if err != nil {
		t.Fatalf("Compose() must not fail on generator error, got %v", err)
	}
	if !answer.Degraded {
		t.Fatal("fallback answer must be marked degraded")
	}
	if len(answer.Citations) != len(chunks) {
		t.Fatalf("expected one citation per excerpt, got %d", len(answer.Citations))
	}
	for i, c := range answer.Citations {
		if !strings.Contains(chunks[i].Chunk.Text, c.Excerpt) {
			t.Fatalf("fallback excerpt %q not grounded in chunk %s", c.Excerpt, c.ChunkID)
		}
	}
}

func TestComposeEmptyChunks(t *testing.T) {
	gen := &composeGeneratorFake{reply: "should not be called"}
	composer := NewComposer(gen, 0)

	answer, err := composer.Compose(context.Background(), "anything", "o-1", nil, NormalPolicy())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if gen.prompt != "" {
		t.Fatal("generator must not run without context chunks")
	}
	if len(answer.Citations) != 0 || answer.Degraded {
		t.Fatalf("expected plain no-records answer, got %+v", answer)
	}
	if !strings.Contains(answer.Text, "No relevant records") {
		t.Fatalf("unexpected text: %s", answer.Text)
	}
}

func TestComposeMandatoryCitationsForcesFallback(t *testing.T) {
	// Generation succeeds but nothing in the reply can be grounded.
	gen := &composeGeneratorFake{reply: "Chakras seem misaligned according to the horoscope forecast today."}
	composer := NewComposer(gen, 0)

	policy := EmergencyPolicy()
	answer, err := composer.Compose(context.Background(), "medications", "o-1", labChunks(), policy)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !answer.Degraded {
		t.Fatal("ungrounded reply under mandatory citations must degrade to excerpts")
	}
	if len(answer.Citations) == 0 {
		t.Fatal("degraded answer must still carry citations")
	}
}

func TestComposePromptRespectsBudget(t *testing.T) {
	gen := &composeGeneratorFake{reply: "ok answer text here."}
	composer := NewComposer(gen, 30)

	chunks := labChunks()
	answer, err := composer.Compose(context.Background(), "labs", "o-1", chunks, NormalPolicy())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	// First chunk always fits; the second exceeds the 30-rune budget.
	if len(answer.SourceChunkIDs) != 1 || answer.SourceChunkIDs[0] != "c1" {
		t.Fatalf("expected only the top chunk in context, got %v", answer.SourceChunkIDs)
	}
}

func TestComposeKeepsDecimalValuesInOneClaim(t *testing.T) {
	reply := "Hemoglobin A1c measured at 6.1 percent on 12 March 2026."
	gen := &composeGeneratorFake{reply: reply}
	composer := NewComposer(gen, 0)
	chunks := []domain.ScoredChunk{{
		Chunk: domain.Chunk{ID: "c1", DocumentID: "d1", Text: reply},
		Score: 0.9,
	}}

	answer, err := composer.Compose(context.Background(), "what was my last a1c?", "o-1", chunks, NormalPolicy())
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if len(answer.Citations) != 1 {
		t.Fatalf("a decimal value must not split the claim, got citations %+v", answer.Citations)
	}
	if answer.Citations[0].Excerpt != reply {
		t.Fatalf("expected the full sentence as excerpt, got %q", answer.Citations[0].Excerpt)
	}
	if answer.Confidence != 1 {
		t.Fatalf("expected confidence 1, got %v", answer.Confidence)
	}
}
