package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

type chromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dims       int
}

// Vectors are always supplied by the caller; chromem must never embed on its own.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectorstore: embeddings must be precomputed")
}

func createChromem(dir, collection string) (*chromemStore, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("create chromem db at %s: %w", dir, err)
	}
	c, err := db.CreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", collection, err)
	}
	return &chromemStore{db: db, collection: c}, nil
}

func openChromem(dir, collection string) (*chromemStore, error) {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, dir)
		}
		return nil, err
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db at %s: %w", dir, err)
	}
	c := db.GetCollection(collection, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: collection %q missing in %s", ErrStoreNotFound, collection, dir)
	}
	return &chromemStore{db: db, collection: c}, nil
}

func (s *chromemStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if s.dims == 0 {
			s.dims = len(r.Vector)
		}
		if len(r.Vector) != s.dims {
			return fmt.Errorf("%w: record %s has %d dimensions, expected %d", ErrDimensionMismatch, r.ID, len(r.Vector), s.dims)
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Vector,
			Metadata: map[string]string{
				"page":     strconv.Itoa(r.Page),
				"seq":      strconv.Itoa(r.Seq),
				"page_seq": strconv.Itoa(r.PageSeq),
			},
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (s *chromemStore) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	total := s.collection.Count()
	if total == 0 || k <= 0 {
		return nil, nil
	}
	if s.dims != 0 && len(query) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), s.dims)
	}
	// The whole collection is ranked so that ties can be ordered by insertion sequence.
	results, err := s.collection.QueryEmbedding(ctx, query, total, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		if s.dims == 0 {
			s.dims = len(res.Embedding)
		}
		matches = append(matches, Match{
			Record: Record{
				ID:      res.ID,
				Text:    res.Content,
				Page:    metaInt(res.Metadata, "page"),
				Seq:     metaInt(res.Metadata, "seq"),
				PageSeq: metaInt(res.Metadata, "page_seq"),
				Vector:  res.Embedding,
			},
			Score: float64(res.Similarity),
		})
	}
	sortMatches(matches)
	return limit(matches, k), nil
}

func (s *chromemStore) Count() int {
	return s.collection.Count()
}

// Close is a no-op; chromem writes every document to disk as it is added.
func (s *chromemStore) Close() error {
	return nil
}

func metaInt(meta map[string]string, key string) int {
	v, err := strconv.Atoi(meta[key])
	if err != nil {
		return 0
	}
	return v
}
