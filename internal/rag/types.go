package rag

import "fmt"

// Chunk is a contiguous segment of one page's text.
type Chunk struct {
	// ID is stable across rebuilds of the same document: p<page>-c<pageSeq>.
	ID   string
	Text string
	// Page is the 1-based source page.
	Page int
	// Seq is the global insertion order.
	Seq int
	// PageSeq is the position within the page.
	PageSeq int
}

func chunkID(page, pageSeq int) string {
	return fmt.Sprintf("p%d-c%d", page, pageSeq)
}

// ScoredChunk is a chunk plus similarity score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievedContext is the ordered, most-relevant-first set of chunks for a query.
type RetrievedContext struct {
	Query       string
	Chunks      []ScoredChunk
	RetrievalMs int64
}

// Pages returns the distinct source pages of the chunks in retrieval order.
func (rc RetrievedContext) Pages() []int {
	return pagesOf(rc.Chunks)
}

func pagesOf(chunks []ScoredChunk) []int {
	seen := make(map[int]struct{}, len(chunks))
	var pages []int
	for _, c := range chunks {
		if _, ok := seen[c.Chunk.Page]; ok {
			continue
		}
		seen[c.Chunk.Page] = struct{}{}
		pages = append(pages, c.Chunk.Page)
	}
	return pages
}
