// Package ai wraps the Google Generative AI SDK behind the embedding and
// generation interfaces the pipeline consumes.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"web-research-assistant/internal/config"
	"web-research-assistant/internal/logger"
	"web-research-assistant/models"
)

// GeminiEmbedder embeds text with a Gemini embedding model. Batches go
// through the SDK's batch API; concurrent batches are bounded by a semaphore
// and a shared rate limiter, and transient failures retry with exponential
// backoff.
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	dim         int
	batchSize   int
	sem         chan struct{}
	rateLimiter *rate.Limiter
	timeout     time.Duration
	maxAttempts int
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.Config) (*GeminiEmbedder, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: missing GEMINI_API_KEY", models.ErrInvalidInput)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.EmbedRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.EmbedRPM)*0.9/60.0), max(1, cfg.EmbedRPM/10))
	}

	return &GeminiEmbedder{
		client:      client,
		model:       cfg.EmbeddingsModel,
		dim:         cfg.VectorDimensions,
		batchSize:   cfg.EmbedBatchSize,
		sem:         make(chan struct{}, max(1, cfg.EmbedConcurrency)),
		rateLimiter: limiter,
		timeout:     cfg.EmbedTimeout,
		maxAttempts: max(1, cfg.EmbedMaxAttempts),
	}, nil
}

// ModelVersion identifies the embedding model; vectors from different
// versions are never mixed in one index.
func (e *GeminiEmbedder) ModelVersion() string { return e.model }

func (e *GeminiEmbedder) Dimension() int { return e.dim }

func (e *GeminiEmbedder) Close() error { return e.client.Close() }

// Embed returns the vector for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds texts in order, splitting them into batches that run
// concurrently up to the configured limit. All texts succeed or the call
// fails; callers that want per-text isolation embed individually.
func (e *GeminiEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("gemini-embedder")
	ctx, span := tracer.Start(ctx, "gemini.embed_many")
	defer span.End()
	span.SetAttributes(
		attribute.Int("embed.texts", len(texts)),
		attribute.String("embed.model", e.model),
	)

	batchSize := e.batchSize
	if batchSize < 1 {
		batchSize = len(texts)
	}

	vectors := make([][]float32, len(texts))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		e.sem <- struct{}{}
		go func(offset int, batch []string) {
			defer wg.Done()
			defer func() { <-e.sem }()

			batchVecs, err := e.embedBatch(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			copy(vectors[offset:], batchVecs)
		}(start, texts[start:end])
	}
	wg.Wait()

	if firstErr != nil {
		span.SetAttributes(attribute.Bool("embed.error", true))
		return nil, firstErr
	}
	return vectors, nil
}

// embedBatch calls the batch embedding API with retries. Context expiry maps
// to ErrTimeout, everything else to ErrEmbeddingService.
func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const baseDelay = 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			logger.Debug("retrying embedding batch", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", models.ErrTimeout, ctx.Err())
			}
		}

		vectors, err := e.callBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: embedding batch: %v", models.ErrTimeout, err)
		}
	}
	return nil, fmt.Errorf("%w: after %d attempts: %v", models.ErrEmbeddingService, e.maxAttempts, lastErr)
}

func (e *GeminiEmbedder) callBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
