package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"web-research-assistant/internal/index"
	"web-research-assistant/models"
)

func indexWith(t *testing.T, emb Embedder, entries []models.EmbeddingRecord) *index.Index {
	t.Helper()
	ix := index.New(emb.ModelVersion(), emb.Dimension())
	for _, rec := range entries {
		if _, err := ix.Insert(rec); err != nil {
			t.Fatalf("insert %s: %v", rec.ChunkID, err)
		}
	}
	return ix
}

func recordFor(emb Embedder, docID string, order, start, end int, text string) models.EmbeddingRecord {
	vec, _ := emb.Embed(context.Background(), text)
	return models.EmbeddingRecord{
		DocumentID:   docID,
		ChunkID:      models.ChunkIDFor(docID, order),
		Order:        order,
		Start:        start,
		End:          end,
		Text:         text,
		Vector:       vec,
		SourceURL:    "https://example.com/" + docID,
		SourceDomain: "example.com",
		Title:        "Doc " + docID,
		ModelVersion: emb.ModelVersion(),
		IngestedAt:   time.Now(),
	}
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	emb := &fakeEmbedder{}
	ix := indexWith(t, emb, []models.EmbeddingRecord{
		recordFor(emb, "doc1", 0, 0, 30, "the sky is blue and bright today"),
		recordFor(emb, "doc2", 0, 0, 30, "databases store rows in tables"),
		recordFor(emb, "doc3", 0, 0, 30, "water is wet and cold"),
	})
	r := NewRetriever(emb, ix, 3)

	results, err := r.Retrieve(context.Background(), "why is the sky blue", 2, 0.1, index.Filters{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Record.DocumentID != "doc1" {
		t.Fatalf("expected sky document first, got %s (score %f)",
			results[0].Record.DocumentID, results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("results not sorted by score at %d", i)
		}
	}
}

func TestRetrieveMinScoreFiltersOut(t *testing.T) {
	emb := &fakeEmbedder{}
	ix := indexWith(t, emb, []models.EmbeddingRecord{
		recordFor(emb, "doc1", 0, 0, 30, "completely unrelated gibberish zzz qqq"),
	})
	r := NewRetriever(emb, ix, 3)

	results, err := r.Retrieve(context.Background(), "why is the sky blue", 5, 0.99, index.Filters{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results above threshold, got %d", len(results))
	}
}

func TestRetrieveDedupsOverlappingChunks(t *testing.T) {
	emb := &fakeEmbedder{}
	// Two chunks of the same document share byte range 80..100.
	ix := indexWith(t, emb, []models.EmbeddingRecord{
		recordFor(emb, "doc1", 0, 0, 100, "the sky is blue the sky is blue"),
		recordFor(emb, "doc1", 1, 80, 180, "the sky is blue sometimes"),
		recordFor(emb, "doc2", 0, 0, 100, "the sky is blue elsewhere"),
	})
	r := NewRetriever(emb, ix, 3)

	results, err := r.Retrieve(context.Background(), "the sky is blue", 5, 0.0, index.Filters{})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	seen := 0
	for _, res := range results {
		if res.Record.DocumentID == "doc1" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("overlapping doc1 chunks not deduped: kept %d", seen)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewRetriever(emb, index.New(emb.ModelVersion(), emb.Dimension()), 3)

	results, err := r.Retrieve(context.Background(), "anything at all", 5, 0.4, index.Filters{})
	if err != nil {
		t.Fatalf("empty index retrieval must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestRetrieveInvalidInput(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewRetriever(emb, index.New(emb.ModelVersion(), emb.Dimension()), 3)

	if _, err := r.Retrieve(context.Background(), "   ", 5, 0.4, index.Filters{}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("blank query: expected ErrInvalidInput, got %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "ok", 0, 0.4, index.Filters{}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("topK=0: expected ErrInvalidInput, got %v", err)
	}
}

func TestRetrieveEmbeddingFailureFailsQuery(t *testing.T) {
	emb := &fakeEmbedder{failTexts: map[string]bool{"doomed query": true}}
	r := NewRetriever(emb, index.New(emb.ModelVersion(), emb.Dimension()), 3)

	if _, err := r.Retrieve(context.Background(), "doomed query", 5, 0.4, index.Filters{}); !errors.Is(err, models.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
}

func TestRetrieveDomainFilter(t *testing.T) {
	emb := &fakeEmbedder{}
	recA := recordFor(emb, "docA", 0, 0, 30, "the sky is blue here")
	recB := recordFor(emb, "docB", 0, 0, 30, "the sky is blue there")
	recB.SourceDomain = "other.org"
	ix := indexWith(t, emb, []models.EmbeddingRecord{recA, recB})
	r := NewRetriever(emb, ix, 3)

	results, err := r.Retrieve(context.Background(), "sky blue", 5, 0.0,
		index.Filters{Domains: []string{"other.org"}})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Record.DocumentID != "docB" {
		t.Fatalf("domain filter failed: %+v", results)
	}
}
