package index

import (
	"errors"
	"testing"
	"time"

	"web-research-assistant/models"
)

const testModel = "text-embedding-004"

func record(chunkID, docID string, vec []float32) models.EmbeddingRecord {
	return models.EmbeddingRecord{
		ChunkID:      chunkID,
		DocumentID:   docID,
		Text:         "text for " + chunkID,
		Vector:       vec,
		SourceURL:    "https://example.com/" + docID,
		SourceDomain: "example.com",
		ModelVersion: testModel,
	}
}

func TestInsertAndSelfSimilaritySearch(t *testing.T) {
	ix := New(testModel, 0)

	vecs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.7, 0.7, 0},
	}
	for i, v := range vecs {
		rec := record(models.ChunkIDFor("doc1", i), "doc1", v)
		if _, err := ix.Insert(rec); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	// A freshly inserted vector queried with itself must be the top-1 hit.
	for i, v := range vecs {
		results, err := ix.Search(v, 1, Filters{})
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		want := models.ChunkIDFor("doc1", i)
		if results[0].Record.ChunkID != want {
			t.Fatalf("self-similarity: expected %s on top, got %s", want, results[0].Record.ChunkID)
		}
	}
}

func TestInsertIdempotent(t *testing.T) {
	ix := New(testModel, 0)

	rec := record("doc1_0", "doc1", []float32{1, 0})
	if _, err := ix.Insert(rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	rec.Text = "updated text"
	if _, err := ix.Insert(rec); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	if got := ix.Size(); got != 1 {
		t.Fatalf("expected index size 1 after duplicate insert, got %d", got)
	}

	// Last writer wins.
	results, err := ix.Search([]float32{1, 0}, 1, Filters{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if results[0].Record.Text != "updated text" {
		t.Fatalf("expected overwritten text, got %q", results[0].Record.Text)
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	ix := New(testModel, 0)

	if _, err := ix.Insert(record("a", "doc1", []float32{1, 0, 0})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := ix.Insert(record("b", "doc1", []float32{1, 0}))
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if got := ix.Size(); got != 1 {
		t.Fatalf("rejected insert must not grow the index, size = %d", got)
	}
}

func TestInsertModelMismatch(t *testing.T) {
	ix := New(testModel, 0)

	rec := record("a", "doc1", []float32{1, 0})
	rec.ModelVersion = "some-other-model"
	if _, err := ix.Insert(rec); !errors.Is(err, models.ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	ix := New(testModel, 0)
	if _, err := ix.Insert(record("a", "doc1", []float32{1, 0, 0})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := ix.Search([]float32{1, 0}, 3, Filters{}); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for bad query vector, got %v", err)
	}
}

func TestSearchTieBreakIsDeterministic(t *testing.T) {
	ix := New(testModel, 0)

	old := record("old", "doc1", []float32{1, 0})
	old.IngestedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := record("recent", "doc2", []float32{1, 0})
	recent.IngestedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := ix.Insert(old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if _, err := ix.Insert(recent); err != nil {
		t.Fatalf("insert recent: %v", err)
	}

	// Identical scores: the most recently ingested record ranks first,
	// and repeated searches agree.
	for i := 0; i < 5; i++ {
		results, err := ix.Search([]float32{1, 0}, 2, Filters{})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if results[0].Record.ChunkID != "recent" || results[1].Record.ChunkID != "old" {
			t.Fatalf("iteration %d: expected [recent old], got [%s %s]",
				i, results[0].Record.ChunkID, results[1].Record.ChunkID)
		}
	}
}

func TestSearchFilters(t *testing.T) {
	ix := New(testModel, 0)

	a := record("a", "doc1", []float32{1, 0})
	a.SourceDomain = "example.com"
	b := record("b", "doc2", []float32{1, 0})
	b.SourceDomain = "other.org"
	for _, rec := range []models.EmbeddingRecord{a, b} {
		if _, err := ix.Insert(rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	results, err := ix.Search([]float32{1, 0}, 10, Filters{Domains: []string{"Example.com"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Record.ChunkID != "a" {
		t.Fatalf("domain filter: expected only chunk a, got %d results", len(results))
	}

	results, err = ix.Search([]float32{1, 0}, 10, Filters{DocumentIDs: []string{"doc2"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Record.DocumentID != "doc2" {
		t.Fatalf("document filter: expected only doc2, got %d results", len(results))
	}
}

func TestDeleteDocument(t *testing.T) {
	ix := New(testModel, 0)

	for i := 0; i < 3; i++ {
		if _, err := ix.Insert(record(models.ChunkIDFor("doc1", i), "doc1", []float32{1, 0})); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := ix.Insert(record("doc2_0", "doc2", []float32{0, 1})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if removed := ix.DeleteDocument("doc1"); removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if got := ix.Size(); got != 1 {
		t.Fatalf("expected 1 record left, got %d", got)
	}
	if got := ix.DocumentCount(); got != 1 {
		t.Fatalf("expected 1 document left, got %d", got)
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := New(testModel, 0)

	results, err := ix.Search([]float32{1, 0}, 5, Filters{})
	if err != nil {
		t.Fatalf("search on empty index must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}
