package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"web-research-assistant/internal/config"
	"web-research-assistant/internal/logger"
	"web-research-assistant/models"
)

// BreakerOpenAnswer is served while the circuit breaker is open instead of
// hammering a degraded upstream.
const BreakerOpenAnswer = "The answer service is experiencing high demand right now. Please try again in a moment."

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// GeminiGenerator produces grounded answers with a Gemini generative model.
// Calls go through a circuit breaker and rate limiter so a degraded upstream
// fails fast instead of piling up requests.
type GeminiGenerator struct {
	client          *genai.Client
	model           string
	maxOutputTokens int32
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
}

func NewGeminiGenerator(ctx context.Context, cfg *config.Config) (*GeminiGenerator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: missing GEMINI_API_KEY", models.ErrInvalidInput)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiGeneration",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name,
				"from", from.String(), "to", to.String())
		},
	})

	var limiter *rate.Limiter
	if cfg.GenerateRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.GenerateRPM)*0.9/60.0), max(1, cfg.GenerateRPM/10))
	}

	return &GeminiGenerator{
		client:          client,
		model:           cfg.GenerationModel,
		maxOutputTokens: int32(cfg.MaxOutputTokens),
		breaker:         breaker,
		rateLimiter:     limiter,
	}, nil
}

func (g *GeminiGenerator) Close() error { return g.client.Close() }

// Generate answers the query from the supplied context only. The returned
// indices are the zero-based context entries the answer cites with [n]
// markers; empty when the model cited nothing explicitly.
func (g *GeminiGenerator) Generate(ctx context.Context, query string, pc models.PromptContext) (string, []int, error) {
	tracer := otel.Tracer("gemini-generator")
	ctx, span := tracer.Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("generate.model", g.model),
		attribute.Int("generate.context_entries", len(pc.Entries)),
		attribute.Int("generate.context_chars", pc.Size),
	)

	if g.rateLimiter != nil {
		if err := g.rateLimiter.Wait(ctx); err != nil {
			return "", nil, fmt.Errorf("%w: %v", models.ErrGenerationService, err)
		}
	}

	prompt := buildGroundedPrompt(query, pc)

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.model)
		model.SetTemperature(0)
		if g.maxOutputTokens > 0 {
			model.SetMaxOutputTokens(g.maxOutputTokens)
		}
		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("generate.circuit_breaker_open", true))
			return BreakerOpenAnswer, nil, nil
		}
		span.SetAttributes(attribute.Bool("generate.error", true))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", nil, fmt.Errorf("%w: generation: %v", models.ErrTimeout, err)
		}
		return "", nil, fmt.Errorf("%w: %v", models.ErrGenerationService, err)
	}

	answer := responseText(result.(*genai.GenerateContentResponse))
	if strings.TrimSpace(answer) == "" {
		return "", nil, fmt.Errorf("%w: model returned no text", models.ErrGenerationService)
	}

	return answer, parseCitations(answer, len(pc.Entries)), nil
}

// buildGroundedPrompt numbers the context passages and instructs the model to
// answer only from them, citing with [n].
func buildGroundedPrompt(query string, pc models.PromptContext) string {
	var b strings.Builder
	b.WriteString("You are a research assistant. Answer the question using ONLY the sources below. ")
	b.WriteString("If the sources do not contain the answer, say you could not find it in the indexed sources. ")
	b.WriteString("Cite each fact with the source number in brackets, like [1].\n\n")

	for i, entry := range pc.Entries {
		fmt.Fprintf(&b, "Source [%d] (%s):\n%s\n\n", i+1, entry.Citation.URL, entry.Text)
	}

	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// parseCitations extracts distinct [n] markers as zero-based entry indices,
// ignoring markers outside 1..n.
func parseCitations(answer string, entries int) []int {
	seen := make(map[int]bool)
	var cited []int
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > entries || seen[n] {
			continue
		}
		seen[n] = true
		cited = append(cited, n-1)
	}
	return cited
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}
