package services

import (
	"context"
	"fmt"
	"strings"

	"web-research-assistant/internal/index"
	"web-research-assistant/models"
)

// Embedder maps text to fixed-dimension vectors. Implemented by
// internal/ai's Gemini client in production and by deterministic fakes in
// tests.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
	Dimension() int
}

// Retriever orchestrates query embedding, index search and post-filtering
// into a ranked set of relevant passages.
type Retriever struct {
	embedder   Embedder
	idx        *index.Index
	oversample int
}

// NewRetriever builds a retriever over an explicitly owned index instance.
// oversample widens the raw search (k = topK * oversample) to leave room for
// post-filtering; values below 1 fall back to 3.
func NewRetriever(embedder Embedder, idx *index.Index, oversample int) *Retriever {
	if oversample < 1 {
		oversample = 3
	}
	return &Retriever{embedder: embedder, idx: idx, oversample: oversample}
}

// Retrieve returns up to topK passages scoring at least minScore, deduped so
// overlapping chunk ranges of the same document keep only the higher-scoring
// hit. An empty result is a valid outcome, not an error: nothing relevant
// was indexed.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minScore float64, filters index.Filters) ([]models.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", models.ErrInvalidInput, topK)
	}

	// A query that cannot be embedded cannot be partially satisfied, so the
	// whole retrieval fails (unlike ingestion, which skips the chunk).
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	raw, err := r.idx.Search(queryVec, topK*r.oversample, filters)
	if err != nil {
		return nil, err
	}

	results := make([]models.RetrievalResult, 0, topK)
	for _, hit := range raw {
		if hit.Score < minScore {
			continue // raw is sorted, but filters keep this a per-hit check
		}
		if overlapsAny(hit, results) {
			continue
		}
		results = append(results, hit)
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// overlapsAny reports whether the candidate covers a chunk range already
// represented by a higher-scoring kept result from the same document.
func overlapsAny(candidate models.RetrievalResult, kept []models.RetrievalResult) bool {
	c := candidate.Record.Chunk()
	for _, k := range kept {
		if c.Overlaps(k.Record.Chunk()) {
			return true
		}
	}
	return false
}
