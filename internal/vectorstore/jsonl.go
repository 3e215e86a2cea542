package vectorstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// JSONLFile is the file name of the jsonl backend inside the store directory.
const JSONLFile = "index.jsonl"

type jsonlStore struct {
	path    string
	records []Record
	ids     map[string]struct{}
	file    *os.File
	writer  *bufio.Writer
}

func createJSONL(dir string) (*jsonlStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	path := filepath.Join(dir, JSONLFile)
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create index file: %w", err)
	}
	return &jsonlStore{
		path:   path,
		ids:    make(map[string]struct{}),
		file:   out,
		writer: bufio.NewWriter(out),
	}, nil
}

func openJSONL(dir string) (*jsonlStore, error) {
	path := filepath.Join(dir, JSONLFile)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	store := &jsonlStore{path: path, ids: make(map[string]struct{})}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("parse index line %d: %w", lineNo, err)
		}
		if err := store.remember(record); err != nil {
			return nil, fmt.Errorf("index line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return store, nil
}

func (s *jsonlStore) remember(r Record) error {
	if _, dup := s.ids[r.ID]; dup {
		return fmt.Errorf("duplicate record id %q", r.ID)
	}
	if len(s.records) > 0 && len(r.Vector) != len(s.records[0].Vector) {
		return fmt.Errorf("%w: record %s has %d dimensions, expected %d", ErrDimensionMismatch, r.ID, len(r.Vector), len(s.records[0].Vector))
	}
	s.ids[r.ID] = struct{}{}
	s.records = append(s.records, r)
	return nil
}

func (s *jsonlStore) Add(ctx context.Context, records []Record) error {
	if s.writer == nil {
		return fmt.Errorf("index %s was opened read-only", s.path)
	}
	encoder := json.NewEncoder(s.writer)
	encoder.SetEscapeHTML(false)
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.remember(r); err != nil {
			return err
		}
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("write index entry: %w", err)
		}
	}
	return nil
}

func (s *jsonlStore) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if len(s.records) == 0 || k <= 0 {
		return nil, nil
	}
	if dims := len(s.records[0].Vector); len(query) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), dims)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := scoreRecords(s.records, query)
	return limit(matches, k), nil
}

func (s *jsonlStore) Count() int {
	return len(s.records)
}

func (s *jsonlStore) Close() error {
	if s.file == nil {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.file, s.writer = nil, nil
	if flushErr != nil {
		return fmt.Errorf("flush index: %w", flushErr)
	}
	return closeErr
}

func scoreRecords(records []Record, query []float32) []Match {
	matches := make([]Match, 0, len(records))
	queryNorm := vectorNorm(query)
	for _, r := range records {
		matches = append(matches, Match{
			Record: r,
			Score:  cosineSimilarity(query, r.Vector, queryNorm),
		})
	}
	sortMatches(matches)
	return matches
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if normA == 0 {
		return 0
	}
	normB := vectorNorm(b)
	if normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float32) float64 {
	sum := 0.0
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}
