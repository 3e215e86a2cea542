package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mwiater/docqa/internal/providers"
)

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("query is empty")

// Searcher is the read side of an Index.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)
	Count() int
}

// Retriever embeds a question and returns the top-k chunks for it.
type Retriever struct {
	index    Searcher
	embedder providers.Embedder
	topK     int
}

// NewRetriever returns a Retriever. A topK of zero or less means 4.
func NewRetriever(index Searcher, embedder providers.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{index: index, embedder: embedder, topK: topK}
}

// TopK returns the number of chunks requested per query.
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve returns at most TopK chunks, most relevant first. An empty index yields an
// empty context without contacting the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string) (RetrievedContext, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return RetrievedContext{}, ErrEmptyQuery
	}
	result := RetrievedContext{Query: query}
	if r.index.Count() == 0 {
		result.RetrievalMs = time.Since(start).Milliseconds()
		return result, nil
	}

	vector, err := providers.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return RetrievedContext{}, err
	}
	chunks, err := r.index.Search(ctx, vector, r.topK)
	if err != nil {
		return RetrievedContext{}, err
	}
	result.Chunks = chunks
	result.RetrievalMs = time.Since(start).Milliseconds()
	return result, nil
}
