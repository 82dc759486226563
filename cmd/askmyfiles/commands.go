package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/codeprimate/askmyfiles/internal/api"
	"github.com/codeprimate/askmyfiles/internal/config"
	"github.com/codeprimate/askmyfiles/internal/engine"
	"github.com/codeprimate/askmyfiles/internal/indexer"
	"github.com/codeprimate/askmyfiles/internal/pipeline"
	"github.com/codeprimate/askmyfiles/internal/storage"
)

// --- ask ---

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question using the indexed files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			maxChars, _ := cmd.Flags().GetInt("max-chars")

			a, err := openApp(cmd.Context(), embedAndChat)
			if err != nil {
				return err
			}
			defer a.Close()

			answerer := pipeline.NewAnswerer(a.retriever, a.composer, a.engine, a.cfg.ChatModel(), a.cfg.Retrieval.MaxChars, slog.Default())
			ans, err := answerer.Ask(cmd.Context(), question, maxChars)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			return nil
		},
	}
	cmd.Flags().Int("max-chars", 0, "context budget in characters (default from retrieval.max_chars)")
	return cmd
}

// --- add ---

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Index a file or directory",
		Long: `Index a file or directory. Unchanged files are skipped; changed files
have all their chunks replaced. Files matching a pattern in the directory's
ignore file (.gitignore by default, one regular expression per line) are
left out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), embedOnly)
			if err != nil {
				return err
			}
			defer a.Close()
			a.progress = cmd.ErrOrStderr()

			printStep("Indexing %s", args[0])
			sum, err := a.indexer.Run(cmd.Context(), args[0])
			if sum != nil {
				fmt.Fprintln(cmd.OutOrStdout(), formatSummary(sum))
			}
			if err != nil {
				return err
			}
			if sum.Failed > 0 {
				printWarning("%s could not be indexed", plural(sum.Failed, "file"))
			} else {
				printSuccess("Index up to date")
			}
			return nil
		},
	}
}

// --- remove ---

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a file from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), noProvider)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.indexer.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSuccess("Removed %s (%s)", args[0], plural(n, "chunk"))
			return nil
		},
	}
}

// --- info ---

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Show the stored chunks of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), noProvider)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.indexer.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			first := records[0]
			printStatus(w, "Path", "%s", first.SourcePath)
			printStatus(w, "Key", "%s", first.DocumentKey)
			printStatus(w, "Chunks", "%d", len(records))
			printStatus(w, "Modified", "%s", first.ModifiedTime.Format(time.RFC3339))
			printStatus(w, "Indexed", "%s", first.IndexedAt.Format(time.RFC3339))
			for _, r := range records {
				fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, r.ID), preview(r.Text, 72))
			}
			return nil
		},
	}
}

// --- search ---

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Print the context retrieved for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			maxChars, _ := cmd.Flags().GetInt("max-chars")
			ranked, _ := cmd.Flags().GetBool("ranked")

			a, err := openApp(cmd.Context(), embedOnly)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			if ranked {
				chunks, err := a.retriever.Retrieve(cmd.Context(), query, 0)
				if err != nil {
					return err
				}
				if len(chunks) == 0 {
					fmt.Fprintln(w, "No results found.")
					return nil
				}
				for i, c := range chunks {
					fmt.Fprintf(w, "%s [score: %.3f] %s#%d\n", colorize(colorBold, fmt.Sprintf("%d.", i+1)), c.Score, c.SourcePath, c.SequenceIndex)
					fmt.Fprintf(w, "  %s\n", preview(c.Text, 120))
				}
				return nil
			}

			if maxChars <= 0 {
				maxChars = a.cfg.Retrieval.MaxChars
			}
			text, err := a.retriever.Context(cmd.Context(), query, maxChars)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, text)
			return nil
		},
	}
	cmd.Flags().Int("max-chars", 0, "context budget in characters (default from retrieval.max_chars)")
	cmd.Flags().Bool("ranked", false, "list matching chunks with scores instead of the assembled context")
	return cmd
}

// --- list ---

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), noProvider)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.indexer.List(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(w, "No files indexed.")
				return nil
			}
			for _, d := range docs {
				fmt.Fprintf(w, "%s  %s  %s\n",
					d.ModifiedTime.Format("2006-01-02 15:04"),
					colorize(colorCyan, fmt.Sprintf("%4d", d.Chunks)),
					d.SourcePath,
				)
			}
			return nil
		},
	}
}

// --- reset ---

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every indexed record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				printWarning("This will delete ALL indexed records. Use --confirm to proceed.")
				return nil
			}

			a, err := openApp(cmd.Context(), noProvider)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.indexer.Reset(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Deleted %s", plural(n, "chunk"))
			return nil
		},
	}
	cmd.Flags().Bool("confirm", false, "confirm deletion")
	return cmd
}

// --- status ---

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider, storage and index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), noProvider)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, versionString())
			printStatus(w, "Provider", "%s", a.cfg.Provider.Backend)
			printStatus(w, "Provider status", "%s", providerStatus(cmd.Context(), a.cfg))
			printStatus(w, "Embed model", "%s", a.cfg.EmbedModel())
			printStatus(w, "Chat model", "%s", a.cfg.ChatModel())
			printStatus(w, "Data dir", "%s", a.cfg.Storage.DataDir)

			count, err := a.vectors.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("%w: %w", indexer.ErrStoreUnavailable, err)
			}
			docs, err := a.indexer.List(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(w, "Files", "%d", len(docs))
			printStatus(w, "Chunks", "%d", count)

			run, err := a.store.LastRun(cmd.Context())
			switch {
			case errors.Is(err, storage.ErrNotFound):
				printStatus(w, "Last index run", "never")
			case err != nil:
				return err
			default:
				printStatus(w, "Last index run", "%s (%s, %s indexed, %s failed)",
					run.FinishedAt.Local().Format(time.RFC3339), run.Root,
					plural(run.Indexed, "file"), plural(run.Failed, "file"))
			}
			return nil
		},
	}
}

func providerStatus(ctx context.Context, cfg config.Config) string {
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.Provider.Backend,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		OllamaBaseURL: cfg.Ollama.BaseURL,
	})
	if err != nil {
		return "not configured (" + err.Error() + ")"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if !eng.IsRunning(ctx) {
		return "unreachable"
	}
	return "reachable"
}

// --- config ---

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s\n", config.ConfigFilePath())
			for _, k := range config.ShowAll(cfg) {
				fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			if err := config.SetKey(key, value); err != nil {
				return err
			}

			printSuccess("Set %s = %s", key, value)
			return nil
		},
	}

	cmd.AddCommand(showCmd, setCmd)
	return cmd
}

// --- mcp ---

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the index to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), embedOnly)
			if err != nil {
				return err
			}
			defer a.Close()

			mcpSrv := api.NewMCPServer(api.MCPDeps{
				Retriever: a.retriever,
				Indexer:   a.indexer,
				MaxChars:  a.cfg.Retrieval.MaxChars,
				Version:   version,
			})
			slog.Info("MCP server started (stdio transport)", "data_dir", a.cfg.Storage.DataDir)

			stdioSrv := server.NewStdioServer(mcpSrv)
			err = stdioSrv.Listen(cmd.Context(), os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		},
	}
}
