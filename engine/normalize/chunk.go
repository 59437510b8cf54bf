package normalize

import (
	"strings"
	"unicode"

	"github.com/beaconrag/beacon/engine/domain"
)

// splitSentences splits text into sentences using terminal punctuation and
// newlines, the same boundary heuristic the teacher's ingest pipeline uses.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// ChunkText groups sentences into token-bounded chunks with overlap,
// tracking byte offsets into the original text for citation purposes.
func ChunkText(sourceFileID, text string, cfg ChunkConfig) []domain.Chunk {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = DefaultChunkConfig.TargetTokens
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = 0
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	ordinal := 0
	start := 0
	offset := 0
	sentenceOffsets := sentenceStartOffsets(text, sentences)

	for start < len(sentences) {
		var buf strings.Builder
		tokens := 0
		end := start

		for end < len(sentences) {
			words := wordCount(sentences[end])
			if tokens+words > cfg.TargetTokens && tokens > 0 {
				break
			}
			if buf.Len() > 0 {
				buf.WriteRune(' ')
			}
			buf.WriteString(sentences[end])
			tokens += words
			end++
		}

		chunkText := buf.String()
		startOffset := sentenceOffsets[start]
		endOffset := startOffset + len(chunkText)

		chunks = append(chunks, domain.Chunk{
			SourceFileID: sourceFileID,
			Ordinal:      ordinal,
			Text:         chunkText,
			StartOffset:  startOffset,
			EndOffset:    endOffset,
		})
		ordinal++
		_ = offset

		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < cfg.OverlapTokens {
			newStart--
			overlapTokens += wordCount(sentences[newStart])
		}
		if newStart == start {
			start = end
		} else {
			start = newStart
		}
	}
	return chunks
}

// sentenceStartOffsets returns, for each sentence, its byte offset into the
// original text. Sentences are matched in order via successive searches,
// tolerant of the whitespace splitSentences trims away.
func sentenceStartOffsets(text string, sentences []string) []int {
	offsets := make([]int, len(sentences))
	cursor := 0
	for i, s := range sentences {
		idx := strings.Index(text[cursor:], s)
		if idx < 0 {
			offsets[i] = cursor
			continue
		}
		offsets[i] = cursor + idx
		cursor += idx + len(s)
	}
	return offsets
}
