package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// GeminiClient wraps the Google Generative AI SDK behind a circuit breaker
// and a rate limiter. One client is constructed at startup and injected into
// every component that embeds or generates; Close releases the connection.
type GeminiClient struct {
	client         *genai.Client
	breaker        *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	embeddingModel string
}

type RateLimits struct {
	RPM int // requests per minute
	RPD int // requests per day
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "paid":
		return RateLimits{RPM: 1000, RPD: 50000}
	default: // free tier
		return RateLimits{RPM: 15, RPD: 1500}
	}
}

func NewGeminiClient(apiKey, embeddingModel, tier string) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1))

	return &GeminiClient{
		client:         client,
		breaker:        breaker,
		rateLimiter:    rateLimiter,
		embeddingModel: embeddingModel,
	}, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// EmbedTexts returns one embedding vector per input text, batched into a
// single API call. Satisfies vectorstore.Embedder.
func (g *GeminiClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		em := g.client.EmbeddingModel(g.embeddingModel)
		batch := em.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		return em.BatchEmbedContents(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini embeddings: empty vector at position %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// GenerateText runs one prompt through the given model and returns the
// concatenated text parts of the first candidate.
func (g *GeminiClient) GenerateText(ctx context.Context, modelName string, temperature float64, prompt string) (string, error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(modelName)
		model.SetTemperature(float32(temperature))
		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	resp := result.(*genai.GenerateContentResponse)
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate: no candidates returned")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return out, nil
}
