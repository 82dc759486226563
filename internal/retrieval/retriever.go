package retrieval

import (
	"context"
	"strings"
)

const (
	// DefaultTopK is the number of nearest records requested per query.
	DefaultTopK = 100

	// DefaultMaxChars is the default character budget of assembled context.
	DefaultMaxChars = 60000
)

// ContextChunk is a retrieved context fragment with its similarity score.
type ContextChunk struct {
	ID            string
	DocumentKey   string
	SourcePath    string
	SequenceIndex int
	Text          string
	Score         float32
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
	topK     int
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
// If topK <= 0, DefaultTopK is used.
func NewRetriever(embedder *Embedder, store VectorStore, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve embeds the query and returns the top-K most similar context chunks
// in the store's rank order.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ContextChunk, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	scored, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	return scoredToChunks(scored), nil
}

// Context retrieves the chunks for query and assembles them into a single
// newline-separated string cut to at most maxChars characters. If maxChars
// <= 0, DefaultMaxChars is used.
func (r *Retriever) Context(ctx context.Context, query string, maxChars int) (string, error) {
	chunks, err := r.Retrieve(ctx, query, r.topK)
	if err != nil {
		return "", err
	}
	return Assemble(chunks, maxChars), nil
}

// Assemble joins chunk texts in order with newlines and truncates the result
// to maxChars characters. The cut is exact and may fall inside a chunk.
func Assemble(chunks []ContextChunk, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return truncate(strings.Join(texts, "\n"), maxChars)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func scoredToChunks(scored []ScoredRecord) []ContextChunk {
	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			ID:            s.ID,
			DocumentKey:   s.DocumentKey,
			SourcePath:    s.SourcePath,
			SequenceIndex: s.SequenceIndex,
			Text:          s.Text,
			Score:         s.Score,
		}
	}
	return chunks
}
