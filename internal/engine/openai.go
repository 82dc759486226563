package engine

import (
	"context"

	"github.com/codeprimate/askmyfiles/internal/openai"
)

var _ Engine = (*OpenAIEngine)(nil)

// OpenAIEngine adapts the internal/openai.Client to the Engine interface.
type OpenAIEngine struct {
	client *openai.Client
}

// NewOpenAIEngine creates an engine for an OpenAI-compatible API at baseURL.
// An empty baseURL selects the public OpenAI endpoint.
func NewOpenAIEngine(apiKey, baseURL string) *OpenAIEngine {
	return &OpenAIEngine{client: openai.NewClient(apiKey, baseURL)}
}

func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	msgs := make([]openai.Message, len(messages))
	for i, m := range messages {
		msgs[i] = openai.Message{Role: m.Role, Content: m.Content}
	}
	return e.client.Chat(ctx, model, msgs)
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}
