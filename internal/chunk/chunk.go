// Package chunk splits raw document text into overlapping fixed-size windows.
//
// The splitter is deliberately boundary-unaware: windows may cut mid-word or
// mid-sentence. Fixed windows keep chunking deterministic and guarantee full
// coverage of the source text, which matters more for recall than clean
// sentence edges.
package chunk

import (
	"errors"
	"fmt"
)

// ErrInvalidChunking indicates the chunker was constructed with parameters
// that can never advance the window.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Default window parameters, sized for embedding models with a few hundred
// token budget per input.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// Chunker splits text using a sliding byte window.
// It is stateless after construction and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker producing windows of size bytes where consecutive
// windows share overlap bytes. Requires size > 0 and 0 <= overlap < size;
// anything else would stall the window and is rejected with
// ErrInvalidChunking.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunking, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunking, overlap, size)
	}

	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the chunks of text in document order. Each chunk covers
// [start, start+size) clipped at the end of the text, and the next window
// starts size-overlap bytes later. Once a window reaches the end of the text
// no further windows are emitted: the remaining bytes are already covered by
// that window's tail, so a trailing sub-overlap fragment would only duplicate
// them. Empty input yields no chunks; any non-empty input yields at least one.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, (len(text)+step-1)/step)

	for start := 0; start < len(text); start += step {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}

	return chunks
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }
