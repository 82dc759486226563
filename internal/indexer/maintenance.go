package indexer

import (
	"context"
	"fmt"

	"github.com/codeprimate/askmyfiles/internal/discovery"
	"github.com/codeprimate/askmyfiles/internal/retrieval"
)

// Identify returns the stored identity of path: relative to the base
// directory and slash-separated.
func (ix *Indexer) Identify(path string) (string, error) {
	return discovery.RelPath(ix.opts.BaseDir, path)
}

// Remove deletes every record of path and returns how many were deleted.
func (ix *Indexer) Remove(ctx context.Context, path string) (int, error) {
	rel, err := ix.Identify(path)
	if err != nil {
		return 0, err
	}
	n, err := ix.store.Delete(ctx, retrieval.BySourcePath(rel))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrRecordNotFound, rel)
	}
	ix.logger.Info("removed file", "path", rel, "records", n)
	return n, nil
}

// Info returns the stored records of path in sequence order.
func (ix *Indexer) Info(ctx context.Context, path string) ([]retrieval.Record, error) {
	rel, err := ix.Identify(path)
	if err != nil {
		return nil, err
	}
	records, err := ix.store.Get(ctx, retrieval.ByDocumentKey(DocumentKey(rel)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, rel)
	}
	return records, nil
}

// Reset deletes every record in the store.
func (ix *Indexer) Reset(ctx context.Context) (int, error) {
	n, err := ix.store.Reset(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	ix.logger.Info("store reset", "records", n)
	return n, nil
}

// List returns one summary per indexed file.
func (ix *Indexer) List(ctx context.Context) ([]retrieval.DocumentSummary, error) {
	docs, err := ix.store.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return docs, nil
}
