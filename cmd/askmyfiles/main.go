package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor bool
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		printError("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "askmyfiles",
		Short: "Ask questions about your local files",
		Long: `askmyfiles keeps a semantic index of your files in ./.vectordatadb and
answers questions using the most relevant excerpts as context.

Examples:
  askmyfiles add ./notes
  askmyfiles ask "what did we decide about the release date?"
  askmyfiles search --max-chars 2000 "deployment checklist"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAskCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newInfoCmd(),
		newSearchCmd(),
		newListCmd(),
		newResetCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newMCPCmd(),
	)
	return root
}

// setupLogging installs the default slog handler on stderr.
func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch {
	case verbose, strings.EqualFold(level, "debug"):
		logLevel = slog.LevelDebug
	case strings.EqualFold(level, "warn"):
		logLevel = slog.LevelWarn
	case strings.EqualFold(level, "error"):
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func versionString() string {
	return fmt.Sprintf("askmyfiles version %s", version)
}
