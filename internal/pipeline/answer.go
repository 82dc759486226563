// Package pipeline answers questions from the indexed files: retrieve
// context, compose the prompt, ask the chat model.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeprimate/askmyfiles/internal/composer"
	"github.com/codeprimate/askmyfiles/internal/engine"
	"github.com/codeprimate/askmyfiles/internal/retrieval"
)

// ContextSource produces the knowledge block for a question.
// *retrieval.Retriever implements it.
type ContextSource interface {
	Context(ctx context.Context, query string, maxChars int) (string, error)
}

// Answer is the model's reply with diagnostics about how it was produced.
type Answer struct {
	Text          string
	ContextChars  int
	PromptTokens  int
	RetrievalTime time.Duration
	ChatTime      time.Duration
}

// Answerer runs the ask pipeline.
type Answerer struct {
	source   ContextSource
	composer *composer.Composer
	engine   engine.Engine
	model    string
	maxChars int
	logger   *slog.Logger
}

// NewAnswerer creates an Answerer. If maxChars <= 0,
// retrieval.DefaultMaxChars is used. A nil logger selects slog.Default.
func NewAnswerer(source ContextSource, comp *composer.Composer, eng engine.Engine, model string, maxChars int, logger *slog.Logger) *Answerer {
	if maxChars <= 0 {
		maxChars = retrieval.DefaultMaxChars
	}
	if comp == nil {
		comp = composer.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		source:   source,
		composer: comp,
		engine:   eng,
		model:    model,
		maxChars: maxChars,
		logger:   logger,
	}
}

// Ask answers question. maxChars overrides the context budget when positive.
// A retrieval failure is returned; the model is never asked without the
// knowledge block.
func (a *Answerer) Ask(ctx context.Context, question string, maxChars int) (Answer, error) {
	if maxChars <= 0 {
		maxChars = a.maxChars
	}
	var ans Answer

	start := time.Now()
	knowledge, err := a.source.Context(ctx, question, maxChars)
	if err != nil {
		return ans, fmt.Errorf("retrieving context: %w", err)
	}
	ans.RetrievalTime = time.Since(start)
	ans.ContextChars = len([]rune(knowledge))

	msgs := a.composer.Compose(question, knowledge)
	ans.PromptTokens = composer.EstimateMessageTokens(msgs)

	start = time.Now()
	reply, err := a.engine.Chat(ctx, a.model, msgs)
	if err != nil {
		return ans, fmt.Errorf("asking %s: %w", a.model, err)
	}
	ans.ChatTime = time.Since(start)
	ans.Text = strings.TrimSpace(reply)

	a.logger.Debug("answered question",
		"model", a.model,
		"context_chars", ans.ContextChars,
		"prompt_tokens", ans.PromptTokens,
		"retrieval_ms", ans.RetrievalTime.Milliseconds(),
		"chat_ms", ans.ChatTime.Milliseconds(),
	)
	return ans, nil
}
