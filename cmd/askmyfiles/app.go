package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/codeprimate/askmyfiles/internal/composer"
	"github.com/codeprimate/askmyfiles/internal/config"
	"github.com/codeprimate/askmyfiles/internal/engine"
	"github.com/codeprimate/askmyfiles/internal/extract"
	"github.com/codeprimate/askmyfiles/internal/indexer"
	"github.com/codeprimate/askmyfiles/internal/retrieval"
	"github.com/codeprimate/askmyfiles/internal/storage"
)

// app holds the components shared by every command. The store handle is
// opened once and passed to each component.
type app struct {
	cfg       config.Config
	store     *storage.Store
	vectors   retrieval.VectorStore
	engine    engine.Engine
	embedder  *retrieval.Embedder
	indexer   *indexer.Indexer
	retriever *retrieval.Retriever
	composer  *composer.Composer

	// progress receives one line per indexed file when set.
	progress io.Writer
}

// providerUse says which models a command needs from the inference provider.
type providerUse int

const (
	// noProvider leaves the engine nil; the command only reads or deletes records.
	noProvider providerUse = iota
	// embedOnly readies the embedding model.
	embedOnly
	// embedAndChat readies both the embedding and chat models.
	embedAndChat
)

// openApp loads config and opens the store. Unless use is noProvider the
// inference provider is built and the models the command needs are checked,
// so a command that never chats does not pull the chat model.
func openApp(ctx context.Context, use providerUse) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)

	a := &app{cfg: cfg, composer: composer.New("")}

	if use != noProvider {
		eng, err := engine.Detect(engine.DetectConfig{
			Backend:       cfg.Provider.Backend,
			OpenAIBaseURL: cfg.OpenAI.BaseURL,
			OpenAIAPIKey:  cfg.OpenAI.APIKey,
			OllamaBaseURL: cfg.Ollama.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring provider: %w", err)
		}
		chatModel := ""
		if use == embedAndChat {
			chatModel = cfg.ChatModel()
		}
		if err := engine.EnsureReady(ctx, eng, chatModel, cfg.EmbedModel(), os.Stderr); err != nil {
			return nil, err
		}
		a.engine = eng
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store

	dataDir, err := filepath.Abs(cfg.Storage.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}

	a.vectors = retrieval.NewSQLiteStore(store.DB())
	a.embedder = retrieval.NewEmbedder(a.engine, cfg.EmbedModel())
	a.retriever = retrieval.NewRetriever(a.embedder, a.vectors, cfg.Retrieval.TopK)
	overlap := cfg.Index.ChunkOverlap
	files := extract.Files{MaxBytes: int64(cfg.Index.MaxFileBytes)}
	a.indexer = indexer.New(a.vectors, a.embedder, files, indexer.Options{
		ChunkSize:  cfg.Index.ChunkSize,
		Overlap:    &overlap,
		IgnoreFile: cfg.Index.IgnoreFile,
		SkipDirs:   []string{dataDir},
		Committer:  store,
		Logger:     slog.Default(),
		OnResult:   a.report,
	})
	return a, nil
}

func (a *app) report(r indexer.Result) {
	if a.progress != nil {
		fmt.Fprintln(a.progress, formatResult(r))
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
