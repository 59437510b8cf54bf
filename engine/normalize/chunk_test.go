package normalize

import (
	"strings"
	"testing"
)

func TestChunkText_SingleChunkForShortText(t *testing.T) {
	text := "This is one sentence. This is another sentence."
	chunks := ChunkText("sf1", text, ChunkConfig{TargetTokens: 1000, OverlapTokens: 100})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Ordinal != 0 {
		t.Errorf("expected ordinal 0, got %d", chunks[0].Ordinal)
	}
	if chunks[0].SourceFileID != "sf1" {
		t.Errorf("expected sf1, got %s", chunks[0].SourceFileID)
	}
}

func TestChunkText_SplitsLongText(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString("word word word word word. ")
	}
	chunks := ChunkText("sf1", sb.String(), ChunkConfig{TargetTokens: 50, OverlapTokens: 10})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("expected contiguous ordinals, chunk %d has ordinal %d", i, c.Ordinal)
		}
	}
}

func TestChunkText_EmptyText(t *testing.T) {
	chunks := ChunkText("sf1", "", ChunkConfig{})
	if chunks != nil {
		t.Errorf("expected nil chunks for empty text, got %v", chunks)
	}
}

func TestChunkText_Overlap(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 100)
	chunksWithOverlap := ChunkText("sf1", text, ChunkConfig{TargetTokens: 20, OverlapTokens: 10})
	chunksNoOverlap := ChunkText("sf1", text, ChunkConfig{TargetTokens: 20, OverlapTokens: 0})
	if len(chunksWithOverlap) < len(chunksNoOverlap) {
		t.Error("expected overlap to produce at least as many chunks as no overlap")
	}
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("One. Two! Three?\nFour")
	if len(sentences) != 4 {
		t.Fatalf("expected 4 sentences, got %d: %v", len(sentences), sentences)
	}
}
