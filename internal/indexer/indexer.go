// Package indexer keeps the vector store in sync with files on disk.
//
// A run walks the candidate files one at a time. Unchanged files are skipped
// without any embedding calls; changed files are extracted, chunked, embedded
// and swapped into the store as a whole document. Failures are contained per
// file, except store failures, which end the run.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codeprimate/askmyfiles/internal/chunker"
	"github.com/codeprimate/askmyfiles/internal/discovery"
	"github.com/codeprimate/askmyfiles/internal/extract"
	"github.com/codeprimate/askmyfiles/internal/retrieval"
	"github.com/codeprimate/askmyfiles/internal/storage"
	"github.com/google/uuid"
)

// InsertBatchSize is the number of records written per insert statement.
const InsertBatchSize = 10

// Status is the outcome of indexing one file.
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result reports what happened to one file.
type Result struct {
	Path    string
	Status  Status
	Records int
	Err     error
}

// Summary reports a whole run.
type Summary struct {
	RunID   string
	Root    string
	Results []Result
	Indexed int
	Skipped int
	Failed  int
	Records int
}

// Committer persists the outcome of a run that changed the store.
// *storage.Store implements it.
type Committer interface {
	Checkpoint(ctx context.Context) error
	RecordRun(ctx context.Context, run storage.IndexRun) error
}

// Options configures an Indexer. The zero value is usable.
type Options struct {
	ChunkSize int

	// Overlap overrides the chunker default when non-nil. Zero is a valid
	// setting and disables overlap.
	Overlap *int

	// IgnoreFile is the ignore-pattern file name looked up in the run root.
	IgnoreFile string

	// BaseDir is the directory stored paths are relative to. Defaults to the
	// working directory.
	BaseDir string

	// SkipDirs are never descended into.
	SkipDirs []string

	// Committer, when set, is called once after a run that changed the store.
	Committer Committer

	Logger *slog.Logger

	// OnResult, when set, is called after each file.
	OnResult func(Result)
}

// Indexer adds and refreshes files in a VectorStore.
type Indexer struct {
	store     retrieval.VectorStore
	embedder  *retrieval.Embedder
	extractor extract.Extractor
	chunker   *chunker.Chunker
	opts      Options
	logger    *slog.Logger
}

// New creates an Indexer. A nil extractor selects extract.Files.
func New(store retrieval.VectorStore, embedder *retrieval.Embedder, extractor extract.Extractor, opts Options) *Indexer {
	if extractor == nil {
		extractor = extract.Files{}
	}
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var copts []chunker.Option
	if opts.ChunkSize > 0 {
		copts = append(copts, chunker.WithChunkSize(opts.ChunkSize))
	}
	if opts.Overlap != nil && *opts.Overlap >= 0 {
		copts = append(copts, chunker.WithOverlap(*opts.Overlap))
	}

	return &Indexer{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		chunker:   chunker.New(copts...),
		opts:      opts,
		logger:    logger,
	}
}

// Run indexes root, a file or a directory. Per-file failures are reported in
// the Summary; the returned error is non-nil only when discovery fails, the
// context is cancelled, or the store is unavailable. In the last two cases
// the partial Summary is returned alongside the error.
func (ix *Indexer) Run(ctx context.Context, root string) (*Summary, error) {
	candidates, err := discovery.Discover(root, ix.opts.BaseDir, discovery.Options{
		IgnoreFile: ix.opts.IgnoreFile,
		SkipDirs:   ix.opts.SkipDirs,
		Logger:     ix.logger,
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	sum := &Summary{RunID: uuid.NewString(), Root: root}
	ix.logger.Debug("index run started", "run", sum.RunID, "root", root, "files", len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		res := ix.indexFile(ctx, c)
		sum.add(res)
		if ix.opts.OnResult != nil {
			ix.opts.OnResult(res)
		}

		if errors.Is(res.Err, ErrStoreUnavailable) {
			return sum, res.Err
		}
	}

	if sum.Indexed > 0 && ix.opts.Committer != nil {
		if err := ix.commit(ctx, sum, started); err != nil {
			return sum, err
		}
	}

	ix.logger.Info("index run finished",
		"run", sum.RunID, "indexed", sum.Indexed, "skipped", sum.Skipped,
		"failed", sum.Failed, "records", sum.Records, "duration", time.Since(started).Round(time.Millisecond))
	return sum, nil
}

func (s *Summary) add(res Result) {
	s.Results = append(s.Results, res)
	switch res.Status {
	case StatusIndexed:
		s.Indexed++
		s.Records += res.Records
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

func (ix *Indexer) commit(ctx context.Context, sum *Summary, started time.Time) error {
	if err := ix.opts.Committer.Checkpoint(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	run := storage.IndexRun{
		ID:         sum.RunID,
		Root:       sum.Root,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Indexed:    sum.Indexed,
		Skipped:    sum.Skipped,
		Failed:     sum.Failed,
		Records:    sum.Records,
	}
	if err := ix.opts.Committer.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// indexFile brings one file's records up to date.
func (ix *Indexer) indexFile(ctx context.Context, c discovery.Candidate) Result {
	res := Result{Path: c.Path}
	fail := func(err error) Result {
		res.Status = StatusFailed
		res.Err = err
		ix.logger.Warn("file not indexed", "path", c.Path, "error", err)
		return res
	}

	info, err := os.Stat(c.AbsPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrFileRead, err))
	}
	modified := info.ModTime()
	key := DocumentKey(c.Path)

	existing, err := ix.store.Get(ctx, retrieval.ByDocumentKey(key))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	if isCurrent(existing, modified) {
		res.Status = StatusSkipped
		res.Records = len(existing)
		ix.logger.Debug("file unchanged", "path", c.Path)
		return res
	}

	text, err := ix.extractor.Extract(c.AbsPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrFileRead, err))
	}

	chunks := ix.chunker.Split(text)
	if len(chunks) == 0 {
		return fail(ErrEmptyChunks)
	}

	records, err := ix.embedder.EmbedChunks(ctx, chunks, retrieval.ChunkMeta{
		DocumentKey:  key,
		SourcePath:   c.Path,
		ModifiedTime: modified,
	})
	if err != nil {
		return fail(err)
	}

	if err := ix.store.Replace(ctx, key, records, InsertBatchSize); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}

	res.Status = StatusIndexed
	res.Records = len(records)
	ix.logger.Debug("file indexed", "path", c.Path, "chunks", len(records))
	return res
}

// isCurrent reports whether the stored records are at least as new as the
// file. All records of a document share one modified time.
func isCurrent(existing []retrieval.Record, modified time.Time) bool {
	if len(existing) == 0 {
		return false
	}
	return existing[0].ModifiedTime.UnixNano() >= modified.UnixNano()
}
