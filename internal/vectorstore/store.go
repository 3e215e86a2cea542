// internal/vectorstore/store.go
// Package vectorstore persists chunk embeddings and answers nearest-neighbor queries.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Supported backends.
const (
	BackendChromem = "chromem"
	BackendJSONL   = "jsonl"
)

var (
	// ErrDimensionMismatch is returned when a query vector and the stored vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrStoreNotFound is returned when opening a store that was never created.
	ErrStoreNotFound = errors.New("vector store not found")
)

// Record is a stored chunk together with its embedding.
type Record struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	Page    int       `json:"page"`
	Seq     int       `json:"seq"`
	PageSeq int       `json:"page_seq"`
	Vector  []float32 `json:"vector"`
}

// Match is a record plus its cosine similarity to the query.
type Match struct {
	Record Record
	Score  float64
}

// Store is a persistent key to vector map with similarity search.
type Store interface {
	// Add persists records. IDs must be unique within the store.
	Add(ctx context.Context, records []Record) error
	// Search returns at most k records, most similar first. Ties keep insertion order.
	Search(ctx context.Context, query []float32, k int) ([]Match, error)
	// Count returns the number of stored records.
	Count() int
	Close() error
}

// Create initializes an empty store of the given backend in dir.
func Create(backend, dir, collection string) (Store, error) {
	switch backend {
	case BackendChromem, "":
		return createChromem(dir, collection)
	case BackendJSONL:
		return createJSONL(dir)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", backend)
	}
}

// Open reopens a store previously written by Create.
func Open(backend, dir, collection string) (Store, error) {
	switch backend {
	case BackendChromem, "":
		return openChromem(dir, collection)
	case BackendJSONL:
		return openJSONL(dir)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", backend)
	}
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.Seq < matches[j].Record.Seq
	})
}

func limit(matches []Match, k int) []Match {
	if k < len(matches) {
		return matches[:k]
	}
	return matches
}
