// Package chunker splits document text into overlapping fixed-size windows.
//
// Sizes are measured in characters (runes), so multi-byte text is never cut
// in the middle of a code point. Chunk boundaries depend only on the input
// text and the configured size and overlap, which keeps record IDs stable
// across runs.
package chunker

import "strings"

const (
	// DefaultChunkSize is the number of characters per chunk.
	DefaultChunkSize = 500

	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 50
)

// Chunker splits text into overlapping chunks.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters. Non-positive values are ignored.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks. Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the given options applied over the defaults.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave room for the window to advance.
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks covering text in order. The last chunk may be
// shorter than the chunk size. Text that is empty or only whitespace yields
// no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	step := c.size - c.overlap

	chunks := make([]string, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := start + c.size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks
}
