// Package index provides the in-memory vector index over embedding records
// plus its MongoDB persistence layer.
package index

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"web-research-assistant/models"
)

// Filters optionally restricts a search to specific source domains or
// document identifiers. Empty fields match everything.
type Filters struct {
	Domains     []string
	DocumentIDs []string
}

// Index is a mutable collection of embedding records supporting idempotent
// insertion and exact cosine nearest-neighbor search. All records share one
// vector dimensionality and one embedding model version for the index
// lifetime; an index is rebuilt wholesale when either changes.
//
// Concurrent inserts of distinct records and searches during writes are
// allowed; inserts to the same record ID serialize with last-writer-wins.
type Index struct {
	mu           sync.RWMutex
	modelVersion string
	dim          int // 0 until fixed by the first insert
	records      map[string]models.EmbeddingRecord
}

// New creates an empty index bound to an embedding model version. dim may
// be 0 to let the first insert fix the dimensionality.
func New(modelVersion string, dim int) *Index {
	return &Index{
		modelVersion: modelVersion,
		dim:          dim,
		records:      make(map[string]models.EmbeddingRecord),
	}
}

// Insert appends a record, overwriting any existing record with the same
// chunk ID so repeated ingestion of the same source never bloats the index.
// Returns the record ID.
func (ix *Index) Insert(rec models.EmbeddingRecord) (string, error) {
	if rec.ChunkID == "" || len(rec.Vector) == 0 {
		return "", fmt.Errorf("%w: record requires chunk_id and vector", models.ErrInvalidInput)
	}
	if rec.ModelVersion != ix.modelVersion {
		return "", fmt.Errorf("%w: index holds %q vectors, got %q",
			models.ErrModelMismatch, ix.modelVersion, rec.ModelVersion)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(rec.Vector)
	} else if len(rec.Vector) != ix.dim {
		return "", fmt.Errorf("%w: index dimension %d, vector dimension %d",
			models.ErrDimensionMismatch, ix.dim, len(rec.Vector))
	}

	if rec.RecordID == "" {
		rec.RecordID = rec.ChunkID
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}

	ix.records[rec.ChunkID] = rec
	return rec.RecordID, nil
}

// Search returns up to k records nearest to queryVec by cosine similarity,
// highest score first. Ties break by most recent ingestion, then record ID,
// so result ordering is deterministic.
func (ix *Index) Search(queryVec []float32, k int, f Filters) ([]models.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.dim != 0 && len(queryVec) != ix.dim {
		return nil, fmt.Errorf("%w: index dimension %d, query dimension %d",
			models.ErrDimensionMismatch, ix.dim, len(queryVec))
	}

	results := make([]models.RetrievalResult, 0, len(ix.records))
	for _, rec := range ix.records {
		if !f.matches(rec) {
			continue
		}
		results = append(results, models.RetrievalResult{
			Record: rec,
			Score:  cosine(queryVec, rec.Vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := results[i].Record.IngestedAt, results[j].Record.IngestedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].Record.RecordID < results[j].Record.RecordID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteDocument removes all records for a document and returns how many
// were removed. Used when a source is refreshed or purged.
func (ix *Index) DeleteDocument(documentID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for id, rec := range ix.records {
		if rec.DocumentID == documentID {
			delete(ix.records, id)
			removed++
		}
	}
	return removed
}

// Size returns the number of records in the index.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// DocumentCount returns the number of distinct documents in the index.
func (ix *Index) DocumentCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs := make(map[string]struct{}, len(ix.records))
	for _, rec := range ix.records {
		docs[rec.DocumentID] = struct{}{}
	}
	return len(docs)
}

// ModelVersion returns the embedding model version this index is bound to.
func (ix *Index) ModelVersion() string { return ix.modelVersion }

// Dimension returns the fixed vector dimensionality, or 0 if no record has
// been inserted yet.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

func (f Filters) matches(rec models.EmbeddingRecord) bool {
	if len(f.DocumentIDs) > 0 {
		found := false
		for _, id := range f.DocumentIDs {
			if rec.DocumentID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Domains) > 0 {
		found := false
		for _, d := range f.Domains {
			if strings.EqualFold(strings.TrimPrefix(d, "www."), rec.SourceDomain) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
