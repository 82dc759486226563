package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codeprimate/askmyfiles/internal/indexer"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// formatResult renders one indexed file as a progress line.
func formatResult(r indexer.Result) string {
	switch r.Status {
	case indexer.StatusIndexed:
		return colorize(colorGreen, "✓ ") + fmt.Sprintf("%s (%s)", r.Path, plural(r.Records, "chunk"))
	case indexer.StatusSkipped:
		return colorize(colorCyan, "= ") + r.Path + " (unchanged)"
	default:
		return colorize(colorRed, "✗ ") + fmt.Sprintf("%s: %v", r.Path, r.Err)
	}
}

// formatSummary renders the totals of a run.
func formatSummary(s *indexer.Summary) string {
	return fmt.Sprintf("%s indexed, %s unchanged, %s failed, %s written",
		plural(s.Indexed, "file"), plural(s.Skipped, "file"), plural(s.Failed, "file"), plural(s.Records, "chunk"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// preview returns the first line of s cut to n runes.
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
