package ai

import (
	"context"
	"strconv"
	"strings"

	"docrag/internal/pkg/apperr"
)

type GenerationConfig struct {
	Model        string
	SystemPrompt string
}

// GenerationClient assembles the retrieval prompt and asks the chat model for
// an answer.
type GenerationClient struct {
	client *OpenAICompatibleClient
	cfg    GenerationConfig
}

func NewGenerationClient(client *OpenAICompatibleClient, cfg GenerationConfig) *GenerationClient {
	return &GenerationClient{client: client, cfg: cfg}
}

// BuildPrompt renders the user message: the numbered references in the given
// order, or an explicit "none" marker, followed by the question.
func (g *GenerationClient) BuildPrompt(query string, contexts []string) string {
	var b strings.Builder
	if len(contexts) == 0 {
		b.WriteString("References: none\n\n")
	} else {
		b.WriteString("References:\n")
		for i, c := range contexts {
			b.WriteString("[")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("] ")
			b.WriteString(c)
			b.WriteString("\n\n")
		}
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// Messages returns the system and user messages sent for query.
func (g *GenerationClient) Messages(query string, contexts []string) []ChatMessage {
	return []ChatMessage{
		{Role: "system", Content: g.cfg.SystemPrompt},
		{Role: "user", Content: g.BuildPrompt(query, contexts)},
	}
}

type chatCompletionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateAnswer calls the chat model with the retrieval prompt. An empty model
// selects the configured default.
func (g *GenerationClient) GenerateAnswer(ctx context.Context, query string, contexts []string, model string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", apperr.InvalidArgument("query is empty")
	}
	if strings.TrimSpace(model) == "" {
		model = g.cfg.Model
	}

	reqBody := map[string]any{
		"model":    model,
		"messages": g.Messages(query, contexts),
		"stream":   false,
	}

	var parsed chatCompletionResponse
	attempts, err := g.client.postJSON(ctx, "/chat/completions", reqBody, &parsed, func() error {
		if len(parsed.Choices) == 0 {
			return fatalf("chat completion returned no choices")
		}
		first := parsed.Choices[0]
		if first.Message == nil || first.Message.Content == nil {
			return fatalf("chat completion returned no message content")
		}
		return nil
	})
	if err != nil {
		return "", apperr.ExternalAfter("chat completion failed", attempts, err)
	}
	return *parsed.Choices[0].Message.Content, nil
}
