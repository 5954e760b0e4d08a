package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"web-research-assistant/internal/index"
	"web-research-assistant/internal/logger"
	"web-research-assistant/internal/telemetry"
	"web-research-assistant/models"
)

// RecordStore persists embedding records alongside the in-memory index so the
// index survives restarts. Satisfied by index.MongoStore.
type RecordStore interface {
	UpsertRecords(ctx context.Context, recs []models.EmbeddingRecord) error
	UpsertDocument(ctx context.Context, doc models.Document) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// IngestionService turns fetched documents into indexed embedding records:
// chunk, embed in batches, insert, persist. Chunks that fail to embed are
// skipped and logged rather than failing the document; a document with zero
// surviving chunks is reported as failed.
type IngestionService struct {
	chunker  *ChunkingService
	embedder Embedder
	idx      *index.Index
	store    RecordStore // nil disables persistence

	batchSize int
	workers   int
	metrics   *telemetry.Metrics
}

func NewIngestionService(chunker *ChunkingService, embedder Embedder, idx *index.Index, store RecordStore, batchSize, workers int) *IngestionService {
	if batchSize < 1 {
		batchSize = 20
	}
	if workers < 1 {
		workers = 4
	}
	return &IngestionService{
		chunker:   chunker,
		embedder:  embedder,
		idx:       idx,
		store:     store,
		batchSize: batchSize,
		workers:   workers,
	}
}

// WithMetrics enables ingestion instrumentation.
func (s *IngestionService) WithMetrics(m *telemetry.Metrics) *IngestionService {
	s.metrics = m
	return s
}

// IngestDocument chunks and embeds one document and inserts the resulting
// records. Re-ingesting the same document overwrites its previous records
// chunk by chunk. Returns the number of records indexed.
func (s *IngestionService) IngestDocument(ctx context.Context, doc models.Document) (int, error) {
	chunks, err := s.chunker.ChunkDocument(doc)
	if err != nil {
		return 0, err
	}

	ingestedAt := time.Now()
	var records []models.EmbeddingRecord

	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := s.embedBatch(ctx, batch)
		if err != nil {
			return 0, err
		}

		for i, vec := range vectors {
			if vec == nil {
				continue // embedding failed for this chunk, already logged
			}
			records = append(records, models.EmbeddingRecord{
				RecordID:     batch[i].ChunkID,
				DocumentID:   doc.ID,
				ChunkID:      batch[i].ChunkID,
				Order:        batch[i].Order,
				Start:        batch[i].Start,
				End:          batch[i].End,
				Text:         batch[i].Text,
				Vector:       vec,
				SourceURL:    doc.URL,
				SourceDomain: doc.Domain(),
				Title:        doc.Title,
				ModelVersion: s.embedder.ModelVersion(),
				IngestedAt:   ingestedAt,
				Metadata:     doc.Metadata,
			})
		}
	}

	if len(records) == 0 {
		return 0, fmt.Errorf("%w: no chunk of document %s could be embedded", models.ErrEmbeddingService, doc.ID)
	}

	indexed := 0
	persisted := records[:0]
	for _, rec := range records {
		if _, err := s.idx.Insert(rec); err != nil {
			logger.Warn("skipping record rejected by index",
				"chunk_id", rec.ChunkID, "error", err)
			continue
		}
		persisted = append(persisted, rec)
		indexed++
	}

	if s.store != nil && len(persisted) > 0 {
		if err := s.store.UpsertRecords(ctx, persisted); err != nil {
			// The in-memory index already holds the records; persistence
			// catches up on the next ingest of this document.
			logger.Error("persisting embedding records failed",
				"document_id", doc.ID, "error", err)
		}
		if err := s.store.UpsertDocument(ctx, doc); err != nil {
			logger.Error("persisting document metadata failed",
				"document_id", doc.ID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordIngestion(doc.Domain(), int64(indexed))
	}
	logger.Info("document ingested",
		"document_id", doc.ID, "url", doc.URL,
		"chunks", len(chunks), "indexed", indexed)
	return indexed, nil
}

// embedBatch embeds a batch of chunks, falling back to per-chunk embedding
// when the whole batch fails so one poison chunk cannot sink its neighbors.
// The returned slice is positionally aligned with the batch; failed chunks
// hold nil.
func (s *IngestionService) embedBatch(ctx context.Context, batch []models.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err == nil && len(vectors) == len(batch) {
		return vectors, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTimeout, ctx.Err())
	}
	logger.Warn("batch embedding failed, retrying chunks individually",
		"batch_size", len(batch), "error", err)

	vectors = make([][]float32, len(batch))
	for i, c := range batch {
		vec, err := s.embedder.Embed(ctx, c.Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrTimeout, ctx.Err())
			}
			logger.Warn("skipping chunk that failed to embed",
				"chunk_id", c.ChunkID, "error", err)
			continue
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// IngestDocuments fans documents out across a bounded worker pool. Failures
// are isolated per document; the error from the first failing document is
// returned alongside the count of documents fully ingested.
func (s *IngestionService) IngestDocuments(ctx context.Context, docs []models.Document) (int, error) {
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ingested := 0
	var firstErr error

	for _, doc := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(doc models.Document) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.IngestDocument(ctx, doc); err != nil {
				logger.Error("document ingestion failed",
					"document_id", doc.ID, "url", doc.URL, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			ingested++
			mu.Unlock()
		}(doc)
	}
	wg.Wait()

	return ingested, firstErr
}

// RemoveDocument drops a document's records from the index and, when
// persistence is configured, from the store.
func (s *IngestionService) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	removed := s.idx.DeleteDocument(documentID)
	if s.store != nil {
		if err := s.store.DeleteDocument(ctx, documentID); err != nil {
			return removed, fmt.Errorf("deleting persisted records for %s: %w", documentID, err)
		}
	}
	return removed, nil
}
