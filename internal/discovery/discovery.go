// Package discovery enumerates the files under an indexing root.
package discovery

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultIgnoreFile is the name of the ignore-pattern file looked up in the
// indexing root. Each non-blank line is a regular expression.
const DefaultIgnoreFile = ".gitignore"

// walkDir is replaced in tests to inject read errors.
var walkDir = filepath.WalkDir

// Candidate is a file selected for indexing.
type Candidate struct {
	// Path is relative to the base directory, slash-separated. It is the
	// identity of the file in the store.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string
}

// Options configures Discover.
type Options struct {
	// IgnoreFile overrides DefaultIgnoreFile.
	IgnoreFile string

	// SkipDirs are absolute directory paths that are never descended into,
	// such as the store's own data directory.
	SkipDirs []string

	Logger *slog.Logger
}

// Discover returns the candidate files for root. If root is a file, the
// result is exactly that file. If root is a directory, every regular file
// beneath it is returned unless its path relative to base matches one of the
// patterns in root's ignore file. Results are sorted by Path. Entries
// below root that cannot be read are logged and skipped; only a failure on
// root itself is returned.
func Discover(root, base string, opts Options) ([]Candidate, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ignoreName := opts.IgnoreFile
	if ignoreName == "" {
		ignoreName = DefaultIgnoreFile
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", base, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	if !info.IsDir() {
		c, err := newCandidate(absBase, absRoot)
		if err != nil {
			return nil, err
		}
		return []Candidate{c}, nil
	}

	patterns := LoadIgnorePatterns(filepath.Join(absRoot, ignoreName), logger)
	if len(patterns) > 0 {
		logger.Debug("using ignore file", "path", filepath.Join(absRoot, ignoreName), "patterns", len(patterns))
	}

	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			skip[abs] = true
		}
	}

	var out []Candidate
	err = walkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if skip[path] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		c, err := newCandidate(absBase, path)
		if err != nil {
			return err
		}
		if matchesAny(c.Path, patterns) {
			return nil
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func newCandidate(base, abs string) (Candidate, error) {
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return Candidate{}, fmt.Errorf("relative path of %s: %w", abs, err)
	}
	return Candidate{Path: filepath.ToSlash(rel), AbsPath: abs}, nil
}

// RelPath returns the identity Discover would give path: relative to base
// and slash-separated. The file does not need to exist.
func RelPath(base, path string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", base, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	c, err := newCandidate(absBase, abs)
	if err != nil {
		return "", err
	}
	return c.Path, nil
}

// LoadIgnorePatterns reads one regular expression per line from path.
// A missing or unreadable file yields no patterns. Lines that fail to
// compile are logged and skipped.
func LoadIgnorePatterns(path string, logger *slog.Logger) []*regexp.Regexp {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("could not read ignore file", "path", path, "error", err)
		}
		return nil
	}
	return ParsePatterns(data, logger)
}

// ParsePatterns compiles the non-blank lines of data.
func ParsePatterns(data []byte, logger *slog.Logger) []*regexp.Regexp {
	if logger == nil {
		logger = slog.Default()
	}
	var res []*regexp.Regexp
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		re, err := regexp.Compile(line)
		if err != nil {
			logger.Warn("skipping invalid ignore pattern", "pattern", line, "error", err)
			continue
		}
		res = append(res, re)
	}
	return res
}

// matchesAny reports whether any pattern matches somewhere in path.
func matchesAny(path string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
