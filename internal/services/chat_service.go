package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// ChatReply is the answer to one user message.
type ChatReply struct {
	Status string       `json:"status"`
	Reply  string       `json:"reply"`
	Usage  models.Usage `json:"usage"`
}

type ChatService struct {
	messages     core.MessageStore
	retriever    core.Retriever
	llm          core.LLMProvider
	systemPrompt string
	topK         int
	logger       *slog.Logger
}

func NewChatService(messages core.MessageStore, retriever core.Retriever, llm core.LLMProvider, systemPrompt string, topK int, logger *slog.Logger) *ChatService {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		messages: messages, retriever: retriever, llm: llm,
		systemPrompt: systemPrompt, topK: topK, logger: logger,
	}
}

// Send stores the user's message, answers it from the retrieved context and
// stores the reply. The user message is kept even when answering fails.
func (s *ChatService) Send(ctx context.Context, threadID, message string) (*ChatReply, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, ErrMissingThread
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	logCtx := s.logger.With("thread_id", threadID)

	userMsg := &models.Message{ThreadID: threadID, Role: models.RoleUser, Content: message, Timestamp: time.Now().UTC()}
	if err := s.messages.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	passages, err := s.retriever.Retrieve(ctx, message, s.topK)
	if errors.Is(err, core.ErrIndexNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	logCtx.Debug("context retrieved", "passages", len(passages))

	prompt := make([]models.ChatMessage, 0, len(passages)+2)
	prompt = append(prompt, models.ChatMessage{Role: models.RoleSystem, Content: s.systemPrompt})
	for _, p := range passages {
		prompt = append(prompt, models.ChatMessage{Role: models.RoleSystem, Content: p.Text})
	}
	prompt = append(prompt, models.ChatMessage{Role: models.RoleUser, Content: message})

	completion, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		logCtx.Error("completion failed", "error", err)
		return nil, fmt.Errorf("completion: %w", err)
	}
	reply := strings.TrimSpace(completion.Text)

	assistantMsg := &models.Message{ThreadID: threadID, Role: models.RoleAssistant, Content: reply, Timestamp: time.Now().UTC()}
	if err := s.messages.AddMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("save reply: %w", err)
	}

	logCtx.Info("message answered", "passages", len(passages), "total_tokens", completion.Usage.TotalTokens)
	return &ChatReply{Status: "success", Reply: reply, Usage: completion.Usage}, nil
}

// History returns a thread's messages oldest first.
func (s *ChatService) History(ctx context.Context, threadID string) ([]models.Message, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, ErrMissingThread
	}
	return s.messages.ListMessages(ctx, threadID)
}
