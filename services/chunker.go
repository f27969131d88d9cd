package services

import (
	"fmt"
	"unicode"
)

// Chunker splits extracted text into overlapping windows ready for
// embedding. Windows are measured in runes so multi-byte scripts chunk the
// same way as ASCII.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split returns the chunks for text in order. Consecutive chunks share
// overlap runes; the final chunk always ends at the end of the text. Empty
// input yields no chunks.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + c.size
		if end >= n {
			chunks = append(chunks, string(runes[start:n]))
			break
		}

		end = c.adjustCut(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))
		start = end - c.overlap
	}
	return chunks
}

// adjustCut moves the cut point backwards to the nearest natural break,
// preferring paragraph over sentence over word boundaries. The cut never
// moves past start+overlap, so every iteration makes progress.
func (c *Chunker) adjustCut(runes []rune, start, end int) int {
	window := c.size / 4
	floor := end - window
	if min := start + c.overlap + 1; floor < min {
		floor = min
	}

	// Paragraph break: cut after the blank line.
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}

	// Sentence end followed by whitespace: cut after the whitespace.
	for i := end - 1; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) && unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	// Word boundary.
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}
