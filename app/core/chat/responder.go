package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = "You are Atlas, a concise personal assistant. Answer conversationally in a few sentences."

// Responder produces a conversational reply for text that was not recognized
// as an assistant task.
type Responder interface {
	Reply(ctx context.Context, userID string, text string) (string, error)
}

// OpenAIResponder answers via the OpenAI chat completions API.
type OpenAIResponder struct {
	client openai.Client
	model  string
}

func NewOpenAIResponder(apiKey string, model string) *OpenAIResponder {
	return &OpenAIResponder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (r *OpenAIResponder) Reply(ctx context.Context, userID string, text string) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	return content, nil
}

// EchoResponder is the offline fallback used when no API key is configured.
// It acknowledges the message without pretending to understand it.
type EchoResponder struct{}

func (EchoResponder) Reply(ctx context.Context, userID string, text string) (string, error) {
	return fmt.Sprintf("I heard you say: %q. I'm running without a language model right now, so that's all I can offer.", text), nil
}
