package ai

import (
	"context"
	"fmt"
	"strings"

	"sql-rag-platform/internal/rag"
	"sql-rag-platform/models"
)

// sqlPrompt asks for a bare query so the result can be executed directly.
const sqlPrompt = `You are an expert SQL developer. Generate a SQL query that answers the
following question. Return only the SQL, without explanations or formatting.

Question: %s
`

const answerPrompt = `Use the following information retrieved from the database and documents
to answer the question.

Information:
%s

Question:
%s

Answer:
`

// LLMService resolves the model configuration for a call and runs SQL
// generation and answer synthesis through it. Only the "google" provider is
// currently implemented; stored configs for other providers are rejected.
type LLMService struct {
	client *GeminiClient
	store  *models.LLMConfigStore

	// Environment fallback when no default config is stored.
	defaultModel string
	temperature  float64
}

func NewLLMService(client *GeminiClient, store *models.LLMConfigStore, defaultModel string, temperature float64) *LLMService {
	return &LLMService{
		client:       client,
		store:        store,
		defaultModel: defaultModel,
		temperature:  temperature,
	}
}

func (s *LLMService) resolve(ctx context.Context, llmConfigID string) (model string, temperature float64, err error) {
	if s.store != nil {
		cfg, err := s.store.Resolve(ctx, llmConfigID)
		if err != nil {
			return "", 0, fmt.Errorf("%w: resolving llm config: %v", rag.ErrGeneration, err)
		}
		if cfg != nil {
			if cfg.Provider != "" && cfg.Provider != "google" {
				return "", 0, fmt.Errorf("%w: unsupported llm provider %q (supported: google)", rag.ErrGeneration, cfg.Provider)
			}
			return cfg.ModelName, cfg.Temperature, nil
		}
	} else if llmConfigID != "" {
		return "", 0, fmt.Errorf("%w: llm config %s requested but no config store is available", rag.ErrGeneration, llmConfigID)
	}
	return s.defaultModel, s.temperature, nil
}

// GenerateSQL turns a natural-language question into a SQL query string.
func (s *LLMService) GenerateSQL(ctx context.Context, question, llmConfigID string) (string, error) {
	model, temperature, err := s.resolve(ctx, llmConfigID)
	if err != nil {
		return "", err
	}
	out, err := s.client.GenerateText(ctx, model, temperature, fmt.Sprintf(sqlPrompt, question))
	if err != nil {
		return "", fmt.Errorf("%w: sql generation: %v", rag.ErrGeneration, err)
	}
	return stripCodeFence(out), nil
}

// GenerateAnswer synthesizes the final answer from the combined context.
func (s *LLMService) GenerateAnswer(ctx context.Context, question, contextText, llmConfigID string) (string, error) {
	model, temperature, err := s.resolve(ctx, llmConfigID)
	if err != nil {
		return "", err
	}
	out, err := s.client.GenerateText(ctx, model, temperature, fmt.Sprintf(answerPrompt, contextText, question))
	if err != nil {
		return "", fmt.Errorf("%w: answer synthesis: %v", rag.ErrGeneration, err)
	}
	return out, nil
}

// stripCodeFence removes a wrapping ```sql fence, which models add despite
// being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
