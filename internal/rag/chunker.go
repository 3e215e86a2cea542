package rag

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mwiater/docqa/internal/document"
)

// ErrInvalidChunking is returned for a chunk size or overlap that cannot make progress.
var ErrInvalidChunking = errors.New("invalid chunking configuration")

// Chunker splits page text into overlapping windows of at most Size runes.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker validates size and overlap.
func NewChunker(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("%w: chunk size must be greater than zero", ErrInvalidChunking)
	}
	if overlap < 0 {
		return Chunker{}, fmt.Errorf("%w: chunk overlap must be zero or greater", ErrInvalidChunking)
	}
	if overlap >= size {
		return Chunker{}, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidChunking, overlap, size)
	}
	return Chunker{Size: size, Overlap: overlap}, nil
}

// Split chunks every page in order. Chunks never cross pages.
func (c Chunker) Split(pages []document.Page) []Chunk {
	var chunks []Chunk
	seq := 0
	for _, page := range pages {
		for i, text := range c.SplitText(page.Text) {
			chunks = append(chunks, Chunk{
				ID:      chunkID(page.Index, i),
				Text:    text,
				Page:    page.Index,
				Seq:     seq,
				PageSeq: i,
			})
			seq++
		}
	}
	return chunks
}

// SplitText slides a window of Size runes over text. Each window ends at the last paragraph
// break, sentence end, or word boundary in its back half, or at Size runes when there is none.
// The next window starts Overlap runes before the previous end. Text is kept verbatim.
func (c Chunker) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	var pieces []string
	emit := func(piece []rune) {
		if strings.TrimSpace(string(piece)) != "" {
			pieces = append(pieces, string(piece))
		}
	}

	start := 0
	for start < n {
		if n-start <= c.Size {
			emit(runes[start:])
			break
		}
		cut := c.findCut(runes, start)
		emit(runes[start:cut])
		start = cut - c.Overlap
	}
	return pieces
}

// findCut returns the end of the window starting at start. The result is always in
// (start+Overlap, start+Size], so consecutive windows advance.
func (c Chunker) findCut(runes []rune, start int) int {
	end := start + c.Size
	lo := max(start+c.Size/2, start+c.Overlap+1)
	if lo > end {
		return end
	}
	for _, boundary := range []func([]rune, int) bool{isParagraphBreak, isSentenceEnd, isWordBoundary} {
		for p := end; p >= lo; p-- {
			if boundary(runes, p) {
				return p
			}
		}
	}
	return end
}

// The boundary predicates report whether a cut between runes[p-1] and runes[p] is natural.
// Callers guarantee 0 < p < len(runes).

func isParagraphBreak(runes []rune, p int) bool {
	return p >= 2 && runes[p-1] == '\n' && runes[p-2] == '\n'
}

func isSentenceEnd(runes []rune, p int) bool {
	switch runes[p-1] {
	case '.', '!', '?':
		return unicode.IsSpace(runes[p])
	}
	return false
}

func isWordBoundary(runes []rune, p int) bool {
	prev, next := runes[p-1], runes[p]
	if unicode.IsSpace(prev) || unicode.IsSpace(next) {
		return true
	}
	return isWordRune(prev) != isWordRune(next)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
