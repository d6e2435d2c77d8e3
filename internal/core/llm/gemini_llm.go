package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

type GeminiLLM struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, temperature float64) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, temperature: float32(temperature)}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Complete folds system messages into the system instruction, replays the
// earlier turns as chat history and sends the final user message.
func (g *GeminiLLM) Complete(ctx context.Context, messages []models.ChatMessage) (*models.Completion, error) {
	system, history, last, err := geminiPrompt(messages)
	if err != nil {
		return nil, err
	}

	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(g.temperature)
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	cs := m.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &models.Completion{Model: g.modelName}
	if resp.UsageMetadata != nil {
		out.Usage = models.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	out.Text = b.String()
	return out, nil
}

func geminiPrompt(messages []models.ChatMessage) (system string, history []*genai.Content, last string, err error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != models.RoleUser {
		return "", nil, "", errors.New("gemini: conversation must end with a user message")
	}

	var sys []string
	for _, msg := range messages[:len(messages)-1] {
		switch msg.Role {
		case models.RoleSystem:
			sys = append(sys, msg.Content)
		case models.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	return strings.Join(sys, "\n\n"), history, messages[len(messages)-1].Content, nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
