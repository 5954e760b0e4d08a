package models

import "time"

// EmbeddingRecord is a denormalized chunk plus its vector, the unit stored
// by the vector index. Records are keyed by (document_id, chunk_id) and
// versioned by the embedding model so vectors from different models are
// never mixed.
type EmbeddingRecord struct {
	RecordID     string            `bson:"record_id" json:"record_id"`
	DocumentID   string            `bson:"document_id" json:"document_id"`
	ChunkID      string            `bson:"chunk_id" json:"chunk_id"`
	Order        int               `bson:"order" json:"order"`
	Start        int               `bson:"start" json:"start"`
	End          int               `bson:"end" json:"end"`
	Text         string            `bson:"text" json:"text"`
	Vector       []float32         `bson:"vector" json:"-"`
	SourceURL    string            `bson:"source_url" json:"source_url"`
	SourceDomain string            `bson:"source_domain" json:"source_domain"`
	Title        string            `bson:"title,omitempty" json:"title,omitempty"`
	ModelVersion string            `bson:"model_version" json:"model_version"`
	IngestedAt   time.Time         `bson:"ingested_at" json:"ingested_at"`
	Metadata     map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Chunk reconstructs the chunk view of the record.
func (r EmbeddingRecord) Chunk() Chunk {
	return Chunk{
		ChunkID:    r.ChunkID,
		DocumentID: r.DocumentID,
		Order:      r.Order,
		Start:      r.Start,
		End:        r.End,
		Text:       r.Text,
	}
}
