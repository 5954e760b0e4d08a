package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"web-research-assistant/internal/index"
	"web-research-assistant/models"
)

func docFromURL(url, text string) models.Document {
	return models.Document{
		ID:        models.NewDocumentID(url),
		URL:       url,
		Title:     "Page",
		Text:      text,
		FetchedAt: time.Now(),
	}
}

func newIngestion(t *testing.T, emb Embedder, store RecordStore) (*IngestionService, *index.Index) {
	t.Helper()
	chunker, err := NewChunkingService(40, 10)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	ix := index.New(emb.ModelVersion(), emb.Dimension())
	return NewIngestionService(chunker, emb, ix, store, 2, 2), ix
}

func TestIngestDocumentIndexesAllChunks(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	svc, ix := newIngestion(t, emb, store)

	doc := docFromURL("https://example.com/sky",
		"The sky is blue. Water is wet. Grass is green. Snow is white and cold in winter.")
	n, err := svc.IngestDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected several chunks indexed, got %d", n)
	}
	if ix.Size() != n {
		t.Fatalf("index size %d != indexed count %d", ix.Size(), n)
	}

	persisted := 0
	for _, batch := range store.upserts {
		persisted += len(batch)
	}
	if persisted != n {
		t.Fatalf("persisted %d records, indexed %d", persisted, n)
	}
}

func TestIngestDocumentIdempotent(t *testing.T) {
	emb := &fakeEmbedder{}
	svc, ix := newIngestion(t, emb, nil)

	doc := docFromURL("https://example.com/sky", "The sky is blue. Water is wet.")
	first, err := svc.IngestDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := svc.IngestDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if first != second {
		t.Fatalf("re-ingest produced %d records, first produced %d", second, first)
	}
	if ix.Size() != first {
		t.Fatalf("re-ingest bloated the index: size %d, want %d", ix.Size(), first)
	}
}

func TestIngestDocumentSkipsFailedChunks(t *testing.T) {
	emb := &fakeEmbedder{failBatch: true}
	svc, ix := newIngestion(t, emb, nil)

	text := "The sky is blue. Water is wet. Grass is green everywhere."
	doc := docFromURL("https://example.com/partial", text)

	// Mark one real chunk text as individually failing, forcing a skip on the
	// per-chunk fallback path.
	chunker, _ := NewChunkingService(40, 10)
	chunks, _ := chunker.ChunkDocument(doc)
	if len(chunks) < 2 {
		t.Fatalf("test needs at least 2 chunks, got %d", len(chunks))
	}
	emb.failTexts = map[string]bool{chunks[0].Text: true}

	n, err := svc.IngestDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("ingest with partial failure: %v", err)
	}
	if n != len(chunks)-1 {
		t.Fatalf("expected %d surviving chunks, got %d", len(chunks)-1, n)
	}
	if ix.Size() != n {
		t.Fatalf("index size %d != %d", ix.Size(), n)
	}
}

func TestIngestDocumentAllChunksFail(t *testing.T) {
	emb := &fakeEmbedder{failBatch: true}
	svc, _ := newIngestion(t, emb, nil)

	doc := docFromURL("https://example.com/doomed", "Some text that will not embed.")
	chunker, _ := NewChunkingService(40, 10)
	chunks, _ := chunker.ChunkDocument(doc)
	emb.failTexts = map[string]bool{}
	for _, c := range chunks {
		emb.failTexts[c.Text] = true
	}

	if _, err := svc.IngestDocument(context.Background(), doc); !errors.Is(err, models.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService when nothing embeds, got %v", err)
	}
}

func TestIngestDocumentEmptyText(t *testing.T) {
	emb := &fakeEmbedder{}
	svc, _ := newIngestion(t, emb, nil)

	if _, err := svc.IngestDocument(context.Background(), docFromURL("https://example.com/empty", "  ")); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestDocumentsIsolatesFailures(t *testing.T) {
	emb := &fakeEmbedder{}
	svc, ix := newIngestion(t, emb, nil)

	docs := []models.Document{
		docFromURL("https://example.com/a", "The sky is blue. Water is wet."),
		docFromURL("https://example.com/b", "   "), // invalid, must not sink the batch
		docFromURL("https://example.com/c", "Grass is green. Snow is white."),
	}

	ingested, err := svc.IngestDocuments(context.Background(), docs)
	if ingested != 2 {
		t.Fatalf("expected 2 documents ingested, got %d", ingested)
	}
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected the failing document's error surfaced, got %v", err)
	}
	if ix.DocumentCount() != 2 {
		t.Fatalf("expected 2 documents in index, got %d", ix.DocumentCount())
	}
}

func TestRemoveDocument(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	svc, ix := newIngestion(t, emb, store)

	doc := docFromURL("https://example.com/gone", "The sky is blue. Water is wet.")
	n, err := svc.IngestDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	removed, err := svc.RemoveDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed != n {
		t.Fatalf("removed %d, ingested %d", removed, n)
	}
	if ix.Size() != 0 {
		t.Fatalf("index not empty after removal: %d", ix.Size())
	}
	if len(store.deleted) != 1 || store.deleted[0] != doc.ID {
		t.Fatalf("store delete not called: %v", store.deleted)
	}
}

func TestIngestDocumentStoreFailureDoesNotFailIngest(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{failUp: true}
	svc, ix := newIngestion(t, emb, store)

	doc := docFromURL("https://example.com/p", "The sky is blue. Water is wet.")
	n, err := svc.IngestDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("ingest should survive store failure: %v", err)
	}
	if n == 0 || ix.Size() != n {
		t.Fatalf("index not populated despite store failure: n=%d size=%d", n, ix.Size())
	}
}
