// Package extract turns files on disk into plain text for chunking.
//
// Plain text is read as-is and must be valid UTF-8. PDF documents are read
// page by page and HTML documents are reduced to their visible text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrNotText is returned for files that are neither a supported document
// format nor valid UTF-8 text.
var ErrNotText = errors.New("not a text file")

// ErrTooLarge is returned by Files when a file exceeds MaxBytes.
var ErrTooLarge = errors.New("file too large")

// Extractor returns the text content of a file.
type Extractor interface {
	Extract(path string) (string, error)
}

// Func adapts a function to the Extractor interface.
type Func func(path string) (string, error)

func (f Func) Extract(path string) (string, error) { return f(path) }

// Files is the default Extractor, dispatching on file extension.
type Files struct {
	// MaxBytes caps the size of files read. Zero means no limit.
	MaxBytes int64
}

// Extract reads path and returns its text.
func (x Files) Extract(path string) (string, error) {
	if x.MaxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if info.Size() > x.MaxBytes {
			return "", fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, path, info.Size(), x.MaxBytes)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDF(path)
	case ".html", ".htm":
		return HTMLFile(path)
	default:
		return Text(path)
	}
}

// Text reads a UTF-8 text file.
func Text(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", path, ErrNotText)
	}
	return string(data), nil
}
