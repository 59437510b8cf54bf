// Package normalize turns raw source.Documents into clean text and splits
// that text into bounded Chunks ready for embedding.
package normalize

import (
	"context"
	"strings"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/engine/source"
	"github.com/beaconrag/beacon/pkg/fn"
)

// ChunkConfig controls the sentence-packing chunker.
type ChunkConfig struct {
	// TargetTokens is the approximate number of whitespace-delimited tokens
	// per chunk.
	TargetTokens int
	// OverlapTokens is how many trailing tokens of one chunk are repeated at
	// the start of the next, to preserve context across chunk boundaries.
	OverlapTokens int
}

// DefaultChunkConfig matches the grounded-prompt defaults.
var DefaultChunkConfig = ChunkConfig{TargetTokens: 1000, OverlapTokens: 100}

// decoder turns a Document's raw bytes into plain text.
type decoder func([]byte) (string, error)

var decoders = map[string]decoder{
	"text/html":       decodeHTML,
	"application/pdf":  decodePDF,
	"text/csv":         decodeCSV,
	"text/plain":       decodeText,
}

// Decode dispatches a Document to the decoder registered for its MimeType.
func Decode(doc source.Document) (string, error) {
	d, ok := decoders[doc.MimeType]
	if !ok {
		d = decodeText
	}
	text, err := d(doc.Body)
	if err != nil {
		return "", domain.Wrap(domain.CodeValidation, err, "decoding %s (%s)", doc.DisplayName, doc.MimeType)
	}
	return text, nil
}

// Normalized is a decoded document ready for chunking.
type Normalized struct {
	SourceFileID string
	Text         string
}

// Pipeline is the Decode -> Chunk fn.Stage composition used by the build
// coordinator for each discovered Document.
func Pipeline(sourceFileID string, cfg ChunkConfig) fn.Stage[source.Document, []domain.Chunk] {
	decodeStage := fn.Stage[source.Document, Normalized](func(_ context.Context, doc source.Document) fn.Result[Normalized] {
		text, err := Decode(doc)
		if err != nil {
			return fn.Err[Normalized](err)
		}
		if strings.TrimSpace(text) == "" {
			return fn.Err[Normalized](domain.New(domain.CodeValidation, "%s decoded to empty text", doc.DisplayName))
		}
		return fn.Ok(Normalized{SourceFileID: sourceFileID, Text: text})
	})

	chunkStage := fn.Stage[Normalized, []domain.Chunk](func(_ context.Context, n Normalized) fn.Result[[]domain.Chunk] {
		chunks := ChunkText(n.SourceFileID, n.Text, cfg)
		if len(chunks) == 0 {
			return fn.Err[[]domain.Chunk](domain.New(domain.CodeValidation, "no chunks produced for %s", n.SourceFileID))
		}
		return fn.Ok(chunks)
	})

	return fn.Then(decodeStage, chunkStage)
}
