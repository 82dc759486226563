package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/codeprimate/askmyfiles/internal/engine"
	"golang.org/x/sync/errgroup"
)

// MaxEmbedWorkers bounds the number of concurrent embedding calls.
const MaxEmbedWorkers = 5

// ErrEmbedding wraps every failure reported by the embedding provider.
var ErrEmbedding = errors.New("embedding provider error")

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine  engine.Engine
	model   string
	workers int
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model, workers: MaxEmbedWorkers}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for texts, in input order, issuing at
// most min(len(texts), MaxEmbedWorkers) calls at a time. Each task writes
// into its own slot so completion order does not matter. The first failure
// cancels the remaining calls and is returned; no partial result is.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(min(len(texts), e.workers))

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i+1, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ChunkMeta is the metadata shared by every chunk of one document.
type ChunkMeta struct {
	DocumentKey  string
	SourcePath   string
	ModifiedTime time.Time
}

// RecordID returns the ID of a document's chunk. Sequence indexes start at 1.
func RecordID(documentKey string, sequenceIndex int) string {
	return documentKey + "-" + strconv.Itoa(sequenceIndex)
}

// EmbedChunks embeds every chunk and returns one Record per chunk whose
// SequenceIndex is the chunk's 1-based position in chunks.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []string, meta ChunkMeta) ([]Record, error) {
	vectors, err := e.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(chunks))
	for i, text := range chunks {
		seq := i + 1
		records[i] = Record{
			ID:            RecordID(meta.DocumentKey, seq),
			DocumentKey:   meta.DocumentKey,
			SequenceIndex: seq,
			SourcePath:    meta.SourcePath,
			Text:          text,
			Embedding:     vectors[i],
			ModifiedTime:  meta.ModifiedTime,
		}
	}
	return records, nil
}
