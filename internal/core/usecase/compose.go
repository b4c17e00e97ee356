package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
)

// systemInstruction pins the model to the supplied context. Kept short;
// it is prepended to every prompt.
const systemInstruction = `You are a health record assistant. Answer strictly from the numbered record excerpts below.
Rules:
- Use ONLY facts present in the excerpts. Never invent, infer or extrapolate medical facts.
- If the excerpts do not answer the question, say so plainly.
- Always end with: "This information is not a substitute for professional medical advice."`

const noRecordsAnswer = "No relevant records were found in the vault for this question. " +
	"This information is not a substitute for professional medical advice."

// recommendationInstruction allows general guidance beyond the excerpts,
// unlike systemInstruction, which is why recommendations never force the
// excerpt fallback on zero citations.
const recommendationInstruction = `You are a health record assistant providing recommendations.
Provide two kinds of recommendations as a clear list:
1. Recommendations specific to the patient's conditions in the record excerpts below, when excerpts are present.
2. General health recommendations and best practices.
For diet questions, personalize the advice to the conditions in the excerpts.
Always end with: "This information is not a substitute for professional medical advice."`

const defaultMaxContextRunes = 6000

// claimMatchThreshold is the minimum token-overlap ratio between an
// answer sentence and a chunk sentence for the chunk to count as support.
const claimMatchThreshold = 0.3

// Composer builds the bounded prompt, invokes the generator and grounds
// the result: every factual sentence is matched back to a supplied chunk
// or flagged low-confidence through the overall score.
type Composer struct {
	generator       ports.AnswerGenerator
	maxContextRunes int

	now   func() time.Time
	newID func() string
}

func NewComposer(generator ports.AnswerGenerator, maxContextRunes int) *Composer {
	if maxContextRunes <= 0 {
		maxContextRunes = defaultMaxContextRunes
	}
	return &Composer{
		generator:       generator,
		maxContextRunes: maxContextRunes,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Compose never fails on a generator error: the fallback is the ranked
// excerpts themselves, marked Degraded.
func (c *Composer) Compose(ctx context.Context, question, ownerID string, chunks []domain.ScoredChunk, policy domain.RetrievalPolicy) (*domain.Answer, error) {
	answer := &domain.Answer{
		ID:        c.newID(),
		OwnerID:   ownerID,
		Mode:      policy.Mode,
		CreatedAt: c.now().UTC(),
	}

	if len(chunks) == 0 {
		answer.Text = noRecordsAnswer
		return answer, nil
	}

	supplied := c.fitContext(chunks)
	for _, sc := range supplied {
		answer.SourceChunkIDs = append(answer.SourceChunkIDs, sc.Chunk.ID)
	}

	text, err := c.generator.Generate(ctx, buildPrompt(systemInstruction, question, supplied))
	if err != nil {
		c.fallbackToExcerpts(answer, supplied)
		return answer, nil
	}

	answer.Text = text
	answer.Citations, answer.Confidence = groundClaims(text, supplied)

	// The emergency path never returns an ungrounded summary.
	if policy.RequireCitations && len(answer.Citations) == 0 {
		c.fallbackToExcerpts(answer, supplied)
	}
	return answer, nil
}

// Recommend produces record-aware recommendations. An empty vault still
// yields general guidance, and claims without citations are expected, so
// only a generator failure with no excerpts to fall back on is an error.
func (c *Composer) Recommend(ctx context.Context, question, ownerID string, chunks []domain.ScoredChunk, policy domain.RetrievalPolicy) (*domain.Answer, error) {
	answer := &domain.Answer{
		ID:        c.newID(),
		OwnerID:   ownerID,
		Mode:      policy.Mode,
		CreatedAt: c.now().UTC(),
	}

	supplied := c.fitContext(chunks)
	for _, sc := range supplied {
		answer.SourceChunkIDs = append(answer.SourceChunkIDs, sc.Chunk.ID)
	}

	text, err := c.generator.Generate(ctx, buildPrompt(recommendationInstruction, question, supplied))
	if err != nil {
		if len(supplied) == 0 {
			return nil, domain.WrapError(domain.ErrLLM, "recommend", err)
		}
		c.fallbackToExcerpts(answer, supplied)
		return answer, nil
	}

	answer.Text = text
	answer.Citations, answer.Confidence = groundClaims(text, supplied)
	return answer, nil
}

// fitContext keeps the ranked head of the candidate list that fits the
// prompt budget, always admitting at least one chunk.
func (c *Composer) fitContext(chunks []domain.ScoredChunk) []domain.ScoredChunk {
	used := 0
	out := make([]domain.ScoredChunk, 0, len(chunks))
	for i, sc := range chunks {
		cost := len([]rune(sc.Chunk.Text))
		if i > 0 && used+cost > c.maxContextRunes {
			break
		}
		out = append(out, sc)
		used += cost
	}
	return out
}

func buildPrompt(instruction, question string, chunks []domain.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(instruction)
	if len(chunks) == 0 {
		b.WriteString("\n\nNo record excerpts are available.\n")
	} else {
		b.WriteString("\n\nRecord excerpts:\n")
	}
	for i, sc := range chunks {
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("]")
		if sc.Chunk.Section != "" {
			b.WriteString(" (")
			b.WriteString(sc.Chunk.Section)
			b.WriteString(")")
		}
		b.WriteString(" ")
		b.WriteString(sc.Chunk.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// fallbackToExcerpts replaces the answer body with the excerpts
// themselves. Every line carries a citation, so confidence is full.
func (c *Composer) fallbackToExcerpts(answer *domain.Answer, chunks []domain.ScoredChunk) {
	var b strings.Builder
	b.WriteString("Relevant excerpts from the vault:\n")
	answer.Citations = answer.Citations[:0]
	for _, sc := range chunks {
		excerpt := leadingExcerpt(sc.Chunk.Text, 240)
		b.WriteString("- ")
		b.WriteString(excerpt)
		b.WriteString("\n")
		answer.Citations = append(answer.Citations, domain.Citation{
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Excerpt:    excerpt,
		})
	}
	b.WriteString("\nThis information is not a substitute for professional medical advice.")
	answer.Text = b.String()
	answer.Confidence = 1
	answer.Degraded = true
}

// groundClaims matches each factual sentence of the generated text
// against the supplied chunks. Unsupported claims stay in the text and
// lower the confidence score instead of being dropped.
func groundClaims(text string, chunks []domain.ScoredChunk) ([]domain.Citation, float64) {
	claims := factualSentences(text)
	if len(claims) == 0 {
		return nil, 0
	}

	type chunkSentences struct {
		chunk     *domain.Chunk
		sentences []string
		tokens    []map[string]struct{}
	}
	prepared := make([]chunkSentences, 0, len(chunks))
	for i := range chunks {
		sentences := splitSentences(chunks[i].Chunk.Text)
		tokens := make([]map[string]struct{}, len(sentences))
		for j, s := range sentences {
			tokens[j] = toTokenSet(s)
		}
		prepared = append(prepared, chunkSentences{
			chunk:     &chunks[i].Chunk,
			sentences: sentences,
			tokens:    tokens,
		})
	}

	var citations []domain.Citation
	seen := make(map[string]struct{})
	matched := 0
	for _, claim := range claims {
		claimTokens := toTokenSet(claim)
		bestScore := 0.0
		var bestChunk *domain.Chunk
		bestExcerpt := ""
		for _, cs := range prepared {
			for j := range cs.sentences {
				overlap := tokenOverlap(claimTokens, cs.tokens[j])
				if overlap > bestScore {
					bestScore = overlap
					bestChunk = cs.chunk
					bestExcerpt = cs.sentences[j]
				}
			}
		}
		if bestChunk == nil || bestScore < claimMatchThreshold {
			continue
		}
		matched++
		key := bestChunk.ID + "\x00" + bestExcerpt
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, domain.Citation{
			ChunkID:    bestChunk.ID,
			DocumentID: bestChunk.DocumentID,
			Excerpt:    bestExcerpt,
		})
	}

	return citations, float64(matched) / float64(len(claims))
}

// factualSentences filters the generated text down to sentences that make
// claims worth grounding. The closing disclaimer and trivial fragments
// are not claims.
func factualSentences(text string) []string {
	var out []string
	for _, s := range splitSentences(text) {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "not a substitute for professional medical advice") {
			continue
		}
		if len(splitAlphaNumLower(trimmed)) < 3 {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// splitSentences returns trimmed sentence substrings of text. Substrings
// of the input satisfy the grounding contract when used as excerpts.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	flush := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range runes {
		switch r {
		case '.', '!', '?', '\n':
			if r == '.' && decimalPoint(runes, i) {
				continue
			}
			flush(i + 1)
		}
	}
	flush(len(runes))
	return out
}

// decimalPoint reports whether the period at runes[i] sits inside a
// numeric value such as 6.1 and therefore does not end a sentence.
func decimalPoint(runes []rune, i int) bool {
	return i > 0 && i+1 < len(runes) &&
		isASCIIDigit(runes[i-1]) && isASCIIDigit(runes[i+1])
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// leadingExcerpt returns the first sentence of text, capped at maxRunes.
func leadingExcerpt(text string, maxRunes int) string {
	sentences := splitSentences(text)
	excerpt := text
	if len(sentences) > 0 {
		excerpt = sentences[0]
	}
	runes := []rune(excerpt)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return excerpt
}
