package services

import (
	"fmt"
	"strings"

	"web-research-assistant/models"
)

// ChunkingService splits document text into overlapping passages sized for
// embedding. Cuts prefer paragraph breaks, then sentence ends, then
// whitespace, and fall back to a hard cut when a single unit exceeds the
// chunk size. Chunks carry exact byte offsets into the document text, so
// ordered chunks cover the document with the configured overlap and no gaps:
// concatenating each chunk minus its overlap with the previous reconstructs
// the text exactly.
type ChunkingService struct {
	chunkSize int
	overlap   int
}

// NewChunkingService validates 0 <= overlap < chunkSize.
func NewChunkingService(chunkSize, overlap int) (*ChunkingService, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidInput, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < chunk size, got %d/%d",
			models.ErrInvalidInput, overlap, chunkSize)
	}
	return &ChunkingService{chunkSize: chunkSize, overlap: overlap}, nil
}

// ChunkDocument splits a document into ordered, overlapping chunks.
func (cs *ChunkingService) ChunkDocument(doc models.Document) ([]models.Chunk, error) {
	text := doc.Text
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document %s has empty text", models.ErrInvalidInput, doc.ID)
	}

	n := len(text)
	var chunks []models.Chunk
	start := 0
	order := 0

	for {
		end := start + cs.chunkSize
		if end >= n {
			end = n
		} else {
			end = cs.cutPoint(text, start, end)
		}

		chunks = append(chunks, models.Chunk{
			ChunkID:    models.ChunkIDFor(doc.ID, order),
			DocumentID: doc.ID,
			Order:      order,
			Start:      start,
			End:        end,
			Text:       text[start:end],
		})

		if end >= n {
			break
		}
		order++
		start = end - cs.overlap
	}

	return chunks, nil
}

// cutPoint picks the best boundary in (start, limit]. The floor keeps every
// cut past start+overlap so the next chunk always makes progress, and past
// half the chunk size so boundary hunting cannot shrink chunks arbitrarily.
func (cs *ChunkingService) cutPoint(text string, start, limit int) int {
	floor := start + cs.overlap + 1
	if half := start + cs.chunkSize/2; half > floor {
		floor = half
	}
	if floor >= limit {
		return limit
	}

	window := text[floor:limit]

	// Paragraph break
	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return floor + i + 2
	}
	// Sentence end
	if i := lastSentenceEnd(window); i >= 0 {
		return floor + i
	}
	// Any whitespace
	if i := strings.LastIndexAny(window, " \t\n"); i >= 0 {
		return floor + i + 1
	}
	// Hard cut: a single unbroken unit exceeds the chunk size.
	return limit
}

// lastSentenceEnd returns the offset just past the last ".", "!" or "?"
// followed by whitespace, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		if s[i] != ' ' && s[i] != '\n' && s[i] != '\t' {
			continue
		}
		switch s[i-1] {
		case '.', '!', '?':
			return i + 1
		}
	}
	return -1
}
