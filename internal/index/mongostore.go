package index

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"web-research-assistant/models"
)

// MongoStore is the persisted index layout: embedding records stored in a
// MongoDB collection keyed by (document_id, chunk_id) and versioned by the
// embedding model identifier, so a model change cannot silently mix
// incompatible vectors.
type MongoStore struct {
	records   *mongo.Collection
	documents *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		records:   db.Collection("embedding_records"),
		documents: db.Collection("documents"),
	}
}

// UpsertRecords writes records with unordered bulk upserts keyed by
// (document_id, chunk_id, model_version), matching the in-memory index's
// idempotent overwrite semantics.
func (s *MongoStore) UpsertRecords(ctx context.Context, recs []models.EmbeddingRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := make([]mongo.WriteModel, 0, len(recs))
	for _, rec := range recs {
		filter := bson.M{
			"document_id":   rec.DocumentID,
			"chunk_id":      rec.ChunkID,
			"model_version": rec.ModelVersion,
		}
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.M{"$set": rec}).
			SetUpsert(true))
	}

	_, err := s.records.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk upsert of %d records failed: %w", len(recs), err)
	}
	return nil
}

// Load returns all persisted records for one embedding model version.
// Records written under other model versions are never loaded together.
func (s *MongoStore) Load(ctx context.Context, modelVersion string) ([]models.EmbeddingRecord, error) {
	cursor, err := s.records.Find(ctx, bson.M{"model_version": modelVersion})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var recs []models.EmbeddingRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// UpsertDocument stores one source page's metadata, keyed by document ID.
func (s *MongoStore) UpsertDocument(ctx context.Context, doc models.Document) error {
	_, err := s.documents.UpdateOne(ctx,
		bson.M{"document_id": doc.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// ListDocuments returns all ingested source pages, text omitted, newest
// first.
func (s *MongoStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	opts := options.Find().
		SetProjection(bson.M{"text": 0}).
		SetSort(bson.D{{Key: "fetched_at", Value: -1}})
	cursor, err := s.documents.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocument removes a document's metadata and all its persisted records
// across model versions.
func (s *MongoStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.records.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return err
	}
	_, err := s.documents.DeleteOne(ctx, bson.M{"document_id": documentID})
	return err
}

// DeleteModelVersion drops every record of a model version. Used for the
// wholesale rebuild that follows an embedding model change.
func (s *MongoStore) DeleteModelVersion(ctx context.Context, modelVersion string) error {
	_, err := s.records.DeleteMany(ctx, bson.M{"model_version": modelVersion})
	return err
}

// LoadInto rebuilds an in-memory index from persisted state, skipping any
// record the index rejects (dimension drift in old data must not poison a
// fresh index). Returns how many records were loaded.
func (s *MongoStore) LoadInto(ctx context.Context, ix *Index) (int, error) {
	recs, err := s.Load(ctx, ix.ModelVersion())
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, rec := range recs {
		if _, err := ix.Insert(rec); err != nil {
			continue
		}
		loaded++
	}
	return loaded, nil
}
