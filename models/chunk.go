package models

import "fmt"

// Chunk is a contiguous slice of a document's text. Start and End are byte
// offsets into Document.Text, so chunks ordered by Start cover the document
// with the configured overlap and no gaps.
type Chunk struct {
	ChunkID    string `bson:"chunk_id" json:"chunk_id"`
	DocumentID string `bson:"document_id" json:"document_id"`
	Order      int    `bson:"order" json:"order"`
	Start      int    `bson:"start" json:"start"`
	End        int    `bson:"end" json:"end"`
	Text       string `bson:"text" json:"text"`
}

// ChunkIDFor builds the deterministic chunk identifier for a document
// position. Deterministic IDs make index inserts idempotent across repeated
// ingestion of the same source.
func ChunkIDFor(documentID string, order int) string {
	return fmt.Sprintf("%s_%d", documentID, order)
}

// Overlaps reports whether two chunks cover overlapping ranges of the same
// document.
func (c Chunk) Overlaps(other Chunk) bool {
	if c.DocumentID != other.DocumentID {
		return false
	}
	return c.Start < other.End && other.Start < c.End
}
