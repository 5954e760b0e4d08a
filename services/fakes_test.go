package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"web-research-assistant/models"
)

const fakeDim = 16

// fakeEmbedder maps text to a deterministic bag-of-words vector so texts that
// share words score high cosine similarity. Good enough to exercise retrieval
// ranking without a live embedding service.
type fakeEmbedder struct {
	failTexts map[string]bool // texts that fail individually
	failBatch bool            // EmbedMany always errors
	calls     int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failTexts[text] {
		return nil, fmt.Errorf("%w: synthetic failure", models.ErrEmbeddingService)
	}
	return wordVector(text), nil
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failBatch {
		return nil, fmt.Errorf("%w: synthetic batch failure", models.ErrEmbeddingService)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) ModelVersion() string { return "fake-embed-001" }
func (f *fakeEmbedder) Dimension() int       { return fakeDim }

func wordVector(text string) []float32 {
	vec := make([]float32, fakeDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?\"'")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%fakeDim]++
	}
	return vec
}

// fakeGenerator echoes the context size and records what it was handed.
type fakeGenerator struct {
	answer   string
	cited    []int
	err      error
	lastCtx  models.PromptContext
	lastQry  string
	genCalls int
}

func (g *fakeGenerator) Generate(_ context.Context, query string, pc models.PromptContext) (string, []int, error) {
	g.genCalls++
	g.lastQry = query
	g.lastCtx = pc
	if g.err != nil {
		return "", nil, g.err
	}
	if g.answer == "" {
		return fmt.Sprintf("answer from %d passages", len(pc.Entries)), g.cited, nil
	}
	return g.answer, g.cited, nil
}

// fakeStore records upserts and deletes in memory.
type fakeStore struct {
	upserts [][]models.EmbeddingRecord
	docs    []models.Document
	deleted []string
	failUp  bool
}

func (s *fakeStore) UpsertRecords(_ context.Context, recs []models.EmbeddingRecord) error {
	if s.failUp {
		return errors.New("store unavailable")
	}
	s.upserts = append(s.upserts, recs)
	return nil
}

func (s *fakeStore) UpsertDocument(_ context.Context, doc models.Document) error {
	s.docs = append(s.docs, doc)
	return nil
}

func (s *fakeStore) DeleteDocument(_ context.Context, documentID string) error {
	s.deleted = append(s.deleted, documentID)
	return nil
}
