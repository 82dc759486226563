package retrieval

import (
	"context"
	"time"
)

// VectorStore persists chunk records and answers similarity queries.
//
// Records are grouped by DocumentKey. The indexer only ever replaces a
// document's records as a whole, so readers never observe a document with a
// mix of old and new chunks.
type VectorStore interface {
	// Get returns the records matching p ordered by source path and sequence index.
	Get(ctx context.Context, p Predicate) ([]Record, error)

	// Delete removes the records matching p and returns how many were removed.
	Delete(ctx context.Context, p Predicate) (int, error)

	// Insert adds records in batches of at most batchSize rows per statement.
	Insert(ctx context.Context, records []Record, batchSize int) error

	// Replace deletes every record of documentKey and inserts records in its
	// place. Implementations must apply both steps atomically.
	Replace(ctx context.Context, documentKey string, records []Record, batchSize int) error

	// Search returns the topK records most similar to vector, best first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// Reset removes every record and returns how many were removed.
	Reset(ctx context.Context) (int, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Documents summarizes the stored records per source path.
	Documents(ctx context.Context) ([]DocumentSummary, error)
}

// Record is one embedded chunk of a document.
type Record struct {
	// ID is DocumentKey + "-" + SequenceIndex.
	ID            string
	DocumentKey   string
	SequenceIndex int
	SourcePath    string
	Text          string
	Embedding     []float32

	// ModifiedTime is the source file's modification time when it was indexed.
	ModifiedTime time.Time
	IndexedAt    time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

// DocumentSummary describes the stored records of one source file.
type DocumentSummary struct {
	SourcePath   string
	DocumentKey  string
	Chunks       int
	ModifiedTime time.Time
}

// Predicate selects records by one metadata field.
type Predicate struct {
	field predicateField
	value string
}

type predicateField int

const (
	fieldDocumentKey predicateField = iota + 1
	fieldSourcePath
)

// ByDocumentKey selects all records of the document with the given key.
func ByDocumentKey(key string) Predicate {
	return Predicate{field: fieldDocumentKey, value: key}
}

// BySourcePath selects all records whose source path equals path.
func BySourcePath(path string) Predicate {
	return Predicate{field: fieldSourcePath, value: path}
}

// Value returns the value the predicate compares against.
func (p Predicate) Value() string { return p.value }

// Matches reports whether r satisfies p. Used by non-SQL backends and tests.
func (p Predicate) Matches(r Record) bool {
	switch p.field {
	case fieldDocumentKey:
		return r.DocumentKey == p.value
	case fieldSourcePath:
		return r.SourcePath == p.value
	}
	return false
}

func (p Predicate) String() string {
	switch p.field {
	case fieldDocumentKey:
		return "document_key=" + p.value
	case fieldSourcePath:
		return "source_path=" + p.value
	}
	return "invalid predicate"
}
