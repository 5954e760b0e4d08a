package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"web-research-assistant/models"
)

func testDoc(text string) models.Document {
	return models.Document{
		ID:        models.NewDocumentID("https://example.com/page"),
		URL:       "https://example.com/page",
		Title:     "Example",
		Text:      text,
		FetchedAt: time.Now(),
	}
}

// reassemble rebuilds the document text from ordered chunks, dropping each
// chunk's overlap with its predecessor.
func reassemble(chunks []models.Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		b.WriteString(c.Text[prevEnd-c.Start:])
		prevEnd = c.End
	}
	return b.String()
}

func TestChunkDocumentCoverage(t *testing.T) {
	texts := []string{
		"The sky is blue. Water is wet.",
		"One paragraph.\n\nAnother paragraph with more words in it.\n\nA third.",
		strings.Repeat("abcdefghij", 57), // no boundaries at all
		"Short.",
		"Sentence one is here. Sentence two is longer and keeps going. Sentence three! Was that a question? Yes it was.",
	}

	cs, err := NewChunkingService(40, 10)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	for _, text := range texts {
		doc := testDoc(text)
		chunks, err := cs.ChunkDocument(doc)
		if err != nil {
			t.Fatalf("chunk %q: %v", text[:10], err)
		}

		// Offsets are ordered, each chunk overlaps its predecessor, no gaps.
		for i, c := range chunks {
			if c.Text != text[c.Start:c.End] {
				t.Fatalf("chunk %d text does not match its offsets", i)
			}
			if i > 0 {
				prev := chunks[i-1]
				if c.Start >= prev.End {
					t.Fatalf("gap between chunk %d and %d: %d >= %d", i-1, i, c.Start, prev.End)
				}
				if c.Start <= prev.Start {
					t.Fatalf("chunk %d does not advance past chunk %d", i, i-1)
				}
			}
		}
		if chunks[len(chunks)-1].End != len(text) {
			t.Fatalf("chunks do not reach end of document")
		}

		if got := reassemble(chunks); got != text {
			t.Fatalf("reassembled text differs from original:\n got %q\nwant %q", got, text)
		}
	}
}

func TestChunkDocumentOverlapScenario(t *testing.T) {
	cs, err := NewChunkingService(20, 5)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	chunks, err := cs.ChunkDocument(testDoc("The sky is blue. Water is wet."))
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 overlapping chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !strings.Contains(c.Text, "is") {
			t.Fatalf("chunk %d %q does not contain overlap word", i, c.Text)
		}
	}
	if !strings.Contains(chunks[0].Text, "sky is blue") {
		t.Fatalf("first chunk %q should contain the first sentence", chunks[0].Text)
	}
}

func TestChunkDocumentEmptyText(t *testing.T) {
	cs, err := NewChunkingService(100, 20)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	for _, text := range []string{"", "   \n\t "} {
		if _, err := cs.ChunkDocument(testDoc(text)); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %q, got %v", text, err)
		}
	}
}

func TestChunkDocumentSizeBound(t *testing.T) {
	cs, err := NewChunkingService(50, 10)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	text := strings.Repeat("A fairly normal sentence sits here. ", 40)
	chunks, err := cs.ChunkDocument(testDoc(text))
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	for i, c := range chunks {
		if len(c.Text) > 50 {
			t.Fatalf("chunk %d exceeds chunk size: %d chars", i, len(c.Text))
		}
	}
}

func TestChunkDocumentHardCutFallback(t *testing.T) {
	cs, err := NewChunkingService(30, 5)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	// A single unit longer than the chunk size forces hard cuts.
	text := strings.Repeat("x", 100)
	chunks, err := cs.ChunkDocument(testDoc(text))
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected multiple hard-cut chunks, got %d", len(chunks))
	}
	if got := reassemble(chunks); got != text {
		t.Fatalf("hard-cut reassembly failed")
	}
}

func TestNewChunkingServiceValidation(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-5, 0},
		{100, -1},
		{100, 100},
		{100, 150},
	}
	for _, c := range cases {
		if _, err := NewChunkingService(c.size, c.overlap); !errors.Is(err, models.ErrInvalidInput) {
			t.Fatalf("size=%d overlap=%d: expected ErrInvalidInput, got %v", c.size, c.overlap, err)
		}
	}
}
