package chunking

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// Splitter turns normalized document text into span-tracked chunks. Spans
// are rune offsets into the input; with Overlap=0 the spans of one pass
// tile the input exactly, and with Overlap>0 each chunk repeats the
// trailing Overlap runes of its predecessor, so overlapping text is
// literally identical in both chunks.
type Splitter struct {
	// TopicShift is the token-overlap ratio below which the semantic
	// strategy starts a new chunk at a sentence boundary.
	TopicShift float64
}

const defaultTopicShift = 0.15

func NewSplitter() *Splitter {
	return &Splitter{TopicShift: defaultTopicShift}
}

type span struct {
	start int
	end   int
}

func (s *Splitter) Chunk(text string, cfg domain.ChunkingConfig) ([]domain.Chunk, error) {
	if cfg.Size <= 0 {
		return nil, domain.WrapError(domain.ErrChunking, "chunk", fmt.Errorf("size must be positive, got %d", cfg.Size))
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, domain.WrapError(domain.ErrChunking, "chunk", fmt.Errorf("overlap %d out of range [0,%d)", cfg.Overlap, cfg.Size))
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	var spans []span
	switch cfg.Strategy {
	case domain.StrategyFixed, "":
		spans = fixedSpans(runes, cfg.Size, cfg.Overlap)
	case domain.StrategySentence:
		spans = s.groupSentences(runes, cfg.Size, cfg.Overlap, false)
	case domain.StrategySemantic:
		spans = s.groupSentences(runes, cfg.Size, cfg.Overlap, true)
	default:
		return nil, domain.WrapError(domain.ErrChunking, "chunk", fmt.Errorf("unknown strategy %q", cfg.Strategy))
	}

	out := make([]domain.Chunk, 0, len(spans))
	for i, sp := range spans {
		out = append(out, domain.Chunk{
			Index: i,
			Start: sp.start,
			End:   sp.end,
			Text:  string(runes[sp.start:sp.end]),
		})
	}
	return out, nil
}

func fixedSpans(runes []rune, size, overlap int) []span {
	n := len(runes)
	out := make([]span, 0, n/size+1)
	start := 0
	for {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, span{start: start, end: end})
		if end == n {
			return out
		}
		start = end - overlap
	}
}

// groupSentences packs whole sentences into chunks up to the size ceiling.
// A single sentence longer than the ceiling becomes its own oversized
// chunk; content is never dropped or truncated.
func (s *Splitter) groupSentences(runes []rune, size, overlap int, topicAware bool) []span {
	sents := sentenceSpans(runes)
	n := len(runes)

	threshold := s.TopicShift
	if threshold <= 0 {
		threshold = defaultTopicShift
	}

	var out []span
	chunkStart := 0
	i := 0
	for i < len(sents) {
		end := sents[i].end
		j := i + 1
		for j < len(sents) && sents[j].end-chunkStart <= size {
			if topicAware && topicShift(runes, sents[j-1], sents[j], threshold) {
				break
			}
			end = sents[j].end
			j++
		}
		out = append(out, span{start: chunkStart, end: end})
		if end >= n {
			return out
		}
		i = j
		chunkStart = end - overlap
		if chunkStart < 0 {
			chunkStart = 0
		}
	}
	return out
}

// sentenceSpans splits runes into sentence spans that tile [0,len) exactly:
// each span runs through its terminator and any trailing whitespace.
func sentenceSpans(runes []rune) []span {
	n := len(runes)
	var out []span
	start := 0
	i := 0
	for i < n {
		switch runes[i] {
		case '.', '!', '?', '\n':
			// A period inside a numeric value (6.1, 37.2) is not a
			// sentence boundary.
			if runes[i] == '.' && i > 0 && i+1 < n &&
				isDigit(runes[i-1]) && isDigit(runes[i+1]) {
				i++
				continue
			}
			j := i + 1
			for j < n && unicode.IsSpace(runes[j]) {
				j++
			}
			out = append(out, span{start: start, end: j})
			start = j
			i = j
		default:
			i++
		}
	}
	if start < n {
		out = append(out, span{start: start, end: n})
	}
	return out
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func topicShift(runes []rune, prev, next span, threshold float64) bool {
	prevTokens := tokenSet(string(runes[prev.start:prev.end]))
	nextTokens := tokenSet(string(runes[next.start:next.end]))
	if len(prevTokens) == 0 || len(nextTokens) == 0 {
		return false
	}
	matches := 0
	for token := range nextTokens {
		if _, ok := prevTokens[token]; ok {
			matches++
		}
	}
	return float64(matches)/float64(len(nextTokens)) < threshold
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{}, 16)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}
