package core

import (
	"context"

	"github.com/markdave123-py/docchat/internal/models"
)

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider completes a conversation. Messages are in prompt order; system
// messages may appear anywhere before the final user message.
type LLMProvider interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (*models.Completion, error)
}
