package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/option"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

// NewLLM returns the chat provider named by cfg.LLMProvider. Gemini clients
// hold a connection and implement io.Closer.
func NewLLM(ctx context.Context, cfg *config.Config) (core.LLMProvider, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GenModel, cfg.Temperature)
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAILLM(cfg.GenModel, cfg.Temperature, option.WithAPIKey(cfg.OpenAIAPIKey)), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// NewEmbedder returns the embedding provider named by cfg.EmbedProvider.
func NewEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case config.ProviderGemini:
		return NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(cfg.EmbedModel, cfg.EmbedDim, option.WithAPIKey(cfg.OpenAIAPIKey)), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}
}
