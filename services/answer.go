package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"web-research-assistant/internal/index"
	"web-research-assistant/internal/logger"
	"web-research-assistant/models"
)

// NoSourcesAnswer is returned when nothing relevant was indexed for a query.
// A best-effort honest answer beats a fabricated one.
const NoSourcesAnswer = "No relevant sources were found for this question. Try ingesting more pages or rephrasing the query."

const snippetLength = 300

// Generator produces a natural-language answer grounded in the assembled
// context. cited holds zero-based indices into the context entries the
// answer actually drew on; an empty slice means the generator did not
// distinguish and all entries count as cited.
type Generator interface {
	Generate(ctx context.Context, query string, pc models.PromptContext) (answer string, cited []int, err error)
}

// AnswerOptions override the configured retrieval defaults per query.
type AnswerOptions struct {
	TopK     int
	MinScore float64
	Filters  index.Filters
}

// AnswerService runs the full query path: embed, search, filter, assemble,
// generate. Stages run sequentially; each depends on the prior stage's
// output.
type AnswerService struct {
	retriever *Retriever
	assembler *ContextAssembler
	generator Generator

	topK            int
	minScore        float64
	maxContextChars int
	generateTimeout time.Duration
}

func NewAnswerService(retriever *Retriever, assembler *ContextAssembler, generator Generator,
	topK int, minScore float64, maxContextChars int, generateTimeout time.Duration) *AnswerService {
	return &AnswerService{
		retriever:       retriever,
		assembler:       assembler,
		generator:       generator,
		topK:            topK,
		minScore:        minScore,
		maxContextChars: maxContextChars,
		generateTimeout: generateTimeout,
	}
}

// Answer resolves a query into a grounded answer with cited sources. An
// empty index or a query below every score threshold yields the
// NoSourcesAnswer response, never an error.
func (s *AnswerService) Answer(ctx context.Context, query string, opts AnswerOptions) (models.AnswerResponse, error) {
	topK := s.topK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	minScore := s.minScore
	if opts.MinScore > 0 {
		minScore = opts.MinScore
	}

	results, err := s.retriever.Retrieve(ctx, query, topK, minScore, opts.Filters)
	if err != nil {
		return models.AnswerResponse{}, err
	}
	if len(results) == 0 {
		return models.AnswerResponse{Answer: NoSourcesAnswer, Sources: []models.Source{}}, nil
	}

	pc := s.assembler.Assemble(results, s.maxContextChars)
	if len(pc.Entries) == 0 {
		// Every retrieved chunk was larger than the context budget.
		return models.AnswerResponse{Answer: NoSourcesAnswer, Sources: []models.Source{}}, nil
	}

	genCtx := ctx
	if s.generateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.generateTimeout)
		defer cancel()
	}

	answer, cited, err := s.generator.Generate(genCtx, query, pc)
	if err != nil {
		if errors.Is(err, models.ErrTimeout) {
			logger.Warn("answer generation timed out", "query_len", len(query))
		}
		return models.AnswerResponse{}, fmt.Errorf("generating answer: %w", err)
	}

	return models.AnswerResponse{
		Answer:  answer,
		Sources: sourcesFor(pc, cited),
	}, nil
}

// sourcesFor maps cited context entries back to API sources, one per
// distinct URL, preserving context order.
func sourcesFor(pc models.PromptContext, cited []int) []models.Source {
	include := make(map[int]bool, len(pc.Entries))
	if len(cited) == 0 {
		for i := range pc.Entries {
			include[i] = true
		}
	} else {
		for _, i := range cited {
			if i >= 0 && i < len(pc.Entries) {
				include[i] = true
			}
		}
	}

	seen := make(map[string]bool)
	sources := make([]models.Source, 0, len(pc.Entries))
	for i, entry := range pc.Entries {
		if !include[i] || seen[entry.Citation.URL] {
			continue
		}
		seen[entry.Citation.URL] = true
		sources = append(sources, models.Source{
			URL:     entry.Citation.URL,
			Title:   entry.Citation.Title,
			Snippet: snippet(entry.Text),
			Score:   entry.Score,
		})
	}
	return sources
}

func snippet(text string) string {
	if len(text) <= snippetLength {
		return text
	}
	return text[:snippetLength] + "..."
}
