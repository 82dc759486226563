package engine

import "context"

// Engine abstracts an inference provider (OpenAI-compatible API or a local
// Ollama server). The embedding pipeline, the retriever and the ask command
// use this interface instead of depending on a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the provider is reachable.
	IsRunning(ctx context.Context) bool
}

// ModelManager is implemented by engines that host models locally and can
// download missing ones.
type ModelManager interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
