package engine

import (
	"errors"
	"fmt"
)

// Provider backends.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// ErrMissingAPIKey is returned when the openai backend has no credential.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OllamaBaseURL string
}

// Detect returns the Engine for the configured backend. An empty backend
// selects openai.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case BackendOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider backend %q (want %s or %s)", cfg.Backend, BackendOpenAI, BackendOllama)
	}
}
