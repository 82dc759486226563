package indexer

import (
	"errors"

	"github.com/codeprimate/askmyfiles/internal/retrieval"
)

var (
	// ErrFileRead means the file could not be read or is not a supported format.
	ErrFileRead = errors.New("file read error")

	// ErrEmptyChunks means the file produced no text to index.
	ErrEmptyChunks = errors.New("no chunks produced")

	// ErrEmbedding means the embedding provider failed for one of the file's chunks.
	ErrEmbedding = retrieval.ErrEmbedding

	// ErrStoreUnavailable means the vector store could not be read or written.
	// It ends the run.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrRecordNotFound means no records exist for the requested path.
	ErrRecordNotFound = errors.New("no records for path")
)
