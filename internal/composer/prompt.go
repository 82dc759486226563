// Package composer builds the chat messages sent to the language model when
// answering a question from the indexed files.
package composer

import (
	"strings"

	"github.com/codeprimate/askmyfiles/internal/engine"
)

// DefaultSystemPrompt frames the model as an assistant over the user's files.
const DefaultSystemPrompt = "You answer questions using the user's own files. " +
	"Prefer the provided knowledge over general knowledge, and say so when it does not cover the question."

// Composer assembles the prompt for a question and its retrieved context.
type Composer struct {
	SystemPrompt string
}

// New creates a Composer. An empty systemPrompt selects DefaultSystemPrompt.
func New(systemPrompt string) *Composer {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Composer{SystemPrompt: systemPrompt}
}

// Compose returns the messages for question. The knowledge block is included
// even when context is empty so the model sees that nothing matched.
func (c *Composer) Compose(question, context string) []engine.Message {
	return []engine.Message{
		{Role: engine.RoleSystem, Content: c.SystemPrompt},
		{Role: engine.RoleUser, Content: UserPrompt(question, context)},
	}
}

// UserPrompt renders the question with the retrieved knowledge.
func UserPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Important Knowledge from My Library:\n")
	sb.WriteString("BEGIN Important Knowledge\n")
	if context = strings.TrimSpace(context); context != "" {
		sb.WriteString(context)
		sb.WriteString("\n")
	}
	sb.WriteString("END Important Knowledge\n\n")
	sb.WriteString("Consider My Library when you answer my question.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\nAnswer:")
	return sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// EstimateMessageTokens sums EstimateTokens over every message.
func EstimateMessageTokens(msgs []engine.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
