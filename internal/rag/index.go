package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mwiater/docqa/internal/document"
	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/providers"
	"github.com/mwiater/docqa/internal/vectorstore"
)

const (
	// ManifestFile is written inside the index directory as the last step of a build.
	ManifestFile = "manifest.json"
	// ManifestVersion changes whenever the on-disk layout or chunking rules change.
	ManifestVersion = 1
)

var (
	// ErrCorruptIndex is returned when a persisted index exists but cannot be trusted.
	ErrCorruptIndex = errors.New("corrupt or incomplete index")
	// ErrIndexNotLoaded is returned when searching an index that was neither built nor loaded.
	ErrIndexNotLoaded = errors.New("index not loaded")
)

// Manifest describes a persisted index.
type Manifest struct {
	Version        int       `json:"version"`
	Fingerprint    string    `json:"fingerprint"`
	Backend        string    `json:"backend"`
	Collection     string    `json:"collection"`
	EmbeddingModel string    `json:"embeddingModel"`
	ChunkSize      int       `json:"chunkSize"`
	ChunkOverlap   int       `json:"chunkOverlap"`
	Chunks         int       `json:"chunks"`
	Dimensions     int       `json:"dimensions"`
	Document       string    `json:"document"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Fingerprint identifies everything that determines the index contents. A persisted index
// whose fingerprint differs from the current one is stale.
func Fingerprint(documentHash string, chunker Chunker, embeddingHostType, embeddingModel, backend string) string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\x00%s\x00%d\x00%d\x00%s\x00%s\x00%s",
		ManifestVersion, documentHash, chunker.Size, chunker.Overlap, embeddingHostType, embeddingModel, backend)
	return hex.EncodeToString(h.Sum(nil))
}

// IndexOptions locates and configures a persisted index.
type IndexOptions struct {
	Dir        string
	Backend    string
	Collection string
	// BatchSize is the number of chunks per embedding request.
	BatchSize int
}

// Index is the durable chunk-id to (text, embedding) collection.
type Index struct {
	opts     IndexOptions
	embedder providers.Embedder
	store    vectorstore.Store
	manifest Manifest
	progress io.Writer
	started  time.Time
}

// NewIndex returns an unopened index. Call Prepare, Load or Build before searching.
func NewIndex(opts IndexOptions, embedder providers.Embedder) *Index {
	opts.Dir = filepath.Clean(opts.Dir)
	if opts.Backend == "" {
		opts.Backend = vectorstore.BackendChromem
	}
	if opts.Collection == "" {
		opts.Collection = "document"
	}
	return &Index{opts: opts, embedder: embedder}
}

// SetProgress enables status lines on w during Prepare and Build.
func (ix *Index) SetProgress(w io.Writer) {
	ix.progress = w
}

func (ix *Index) status(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logging.LogEvent("%s", msg)
	if ix.progress == nil {
		return
	}
	if ix.started.IsZero() {
		ix.started = time.Now()
	}
	elapsed := time.Since(ix.started).Truncate(time.Millisecond)
	fmt.Fprintf(ix.progress, "[%s] %s\n", elapsed, msg)
}

// Dir returns the index directory.
func (ix *Index) Dir() string {
	return ix.opts.Dir
}

// Exists reports whether anything is persisted at the index location.
func (ix *Index) Exists() bool {
	_, err := os.Stat(ix.opts.Dir)
	return err == nil
}

// ReadManifest reads the persisted manifest. A missing or unreadable manifest in an
// existing directory means a build never completed.
func (ix *Index) ReadManifest() (Manifest, error) {
	path := filepath.Join(ix.opts.Dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, ix.corrupt("manifest unreadable: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, ix.corrupt("manifest invalid: %v", err)
	}
	if m.Version != ManifestVersion {
		return Manifest{}, ix.corrupt("manifest version %d, expected %d", m.Version, ManifestVersion)
	}
	return m, nil
}

func (ix *Index) corrupt(format string, args ...any) error {
	return fmt.Errorf("%w at %s: %s (run with --rebuild to recreate it)", ErrCorruptIndex, ix.opts.Dir, fmt.Sprintf(format, args...))
}

// Load opens the persisted index without embedding anything.
func (ix *Index) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := ix.ReadManifest()
	if err != nil {
		return err
	}
	if m.Backend != ix.opts.Backend {
		return ix.corrupt("built with backend %q, configured backend is %q", m.Backend, ix.opts.Backend)
	}
	store, err := vectorstore.Open(m.Backend, ix.opts.Dir, m.Collection)
	if err != nil {
		return ix.corrupt("open store: %v", err)
	}
	if store.Count() != m.Chunks {
		_ = store.Close()
		return ix.corrupt("store holds %d chunks, manifest lists %d", store.Count(), m.Chunks)
	}
	ix.replaceStore(store, m)
	return nil
}

// Build embeds every chunk and persists the result, replacing any existing index. Nothing
// is written until every embedding has succeeded, and the new index only replaces the old
// one once it is complete.
func (ix *Index) Build(ctx context.Context, chunks []Chunk, m Manifest) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	ix.status("Embedding %d chunks with %s (batch size %d)", len(chunks), ix.embedder.Model(), ix.opts.BatchSize)
	vectors, err := providers.BatchEmbed(ctx, ix.embedder, texts, ix.opts.BatchSize, func(done, total int) {
		ix.status("Embedded %d/%d chunks", done, total)
	})
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:      c.ID,
			Text:    c.Text,
			Page:    c.Page,
			Seq:     c.Seq,
			PageSeq: c.PageSeq,
			Vector:  vectors[i],
		}
	}

	m.Version = ManifestVersion
	m.Backend = ix.opts.Backend
	m.Collection = ix.opts.Collection
	m.EmbeddingModel = ix.embedder.Model()
	m.Chunks = len(records)
	m.Dimensions = 0
	if len(vectors) > 0 {
		m.Dimensions = len(vectors[0])
	}
	m.CreatedAt = time.Now().UTC()

	staging := ix.opts.Dir + ".building"
	if err := ix.writeStaging(ctx, staging, records, m); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("build index: %w", err)
	}

	if ix.store != nil {
		_ = ix.store.Close()
		ix.store = nil
	}
	if err := installDir(staging, ix.opts.Dir); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	ix.status("Index written to %s (%d chunks, %d dimensions)", ix.opts.Dir, m.Chunks, m.Dimensions)
	return ix.Load(ctx)
}

// renameDir is replaced in tests to simulate a failed install.
var renameDir = os.Rename

// installDir moves staging to dir. An existing dir is first moved aside to dir+".old" and is
// restored when staging cannot be installed, so a failed install never loses the previous index.
func installDir(staging, dir string) error {
	old := dir + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("remove stale index backup: %w", err)
	}
	hadPrevious := true
	if err := renameDir(dir, old); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("move previous index aside: %w", err)
		}
		hadPrevious = false
	}
	if err := renameDir(staging, dir); err != nil {
		if hadPrevious {
			if rerr := renameDir(old, dir); rerr != nil {
				return fmt.Errorf("install index: %w (restore previous index from %s: %v)", err, old, rerr)
			}
		}
		return fmt.Errorf("install index: %w", err)
	}
	if hadPrevious {
		if err := os.RemoveAll(old); err != nil {
			logging.Logger().Warn().Err(err).Str("path", old).Msg("could not remove previous index")
		}
	}
	return nil
}

func (ix *Index) writeStaging(ctx context.Context, staging string, records []vectorstore.Record, m Manifest) error {
	if err := os.RemoveAll(staging); err != nil {
		return err
	}
	if dir := filepath.Dir(staging); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	store, err := vectorstore.Create(ix.opts.Backend, staging, ix.opts.Collection)
	if err != nil {
		return err
	}
	if err := store.Add(ctx, records); err != nil {
		_ = store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(staging, ManifestFile), data, 0o644)
}

func (ix *Index) replaceStore(store vectorstore.Store, m Manifest) {
	if ix.store != nil {
		_ = ix.store.Close()
	}
	ix.store = store
	ix.manifest = m
}

// Manifest returns the manifest of the loaded index.
func (ix *Index) Manifest() Manifest {
	return ix.manifest
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() int {
	if ix.store == nil {
		return 0
	}
	return ix.store.Count()
}

// Search returns the k chunks nearest to vector, most similar first. Read-only.
func (ix *Index) Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if ix.store == nil {
		return nil, ErrIndexNotLoaded
	}
	if ix.manifest.Dimensions > 0 && len(vector) != ix.manifest.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index was built with %d (embedding model %s)",
			vectorstore.ErrDimensionMismatch, len(vector), ix.manifest.Dimensions, ix.manifest.EmbeddingModel)
	}
	matches, err := ix.store.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredChunk, len(matches))
	for i, m := range matches {
		out[i] = ScoredChunk{
			Chunk: Chunk{
				ID:      m.Record.ID,
				Text:    m.Record.Text,
				Page:    m.Record.Page,
				Seq:     m.Record.Seq,
				PageSeq: m.Record.PageSeq,
			},
			Score: m.Score,
		}
	}
	return out, nil
}

// Close releases the underlying store.
func (ix *Index) Close() error {
	if ix.store == nil {
		return nil
	}
	err := ix.store.Close()
	ix.store = nil
	return err
}

// BuildSpec describes the index that should exist for the current document and settings.
type BuildSpec struct {
	Fingerprint string
	Document    string
	Chunker     Chunker
	// Pages loads the document. It is only called when a build is needed.
	Pages func(ctx context.Context) ([]document.Page, error)
}

// PrepareResult reports what Prepare did.
type PrepareResult struct {
	Built  bool
	Reason string
	Chunks int
}

// Prepare makes the index ready for searching. A missing index is built, an index with a
// matching fingerprint is loaded, and an index with a different fingerprint is rebuilt.
// rebuild forces a build. An index directory without a valid manifest is ErrCorruptIndex.
func (ix *Index) Prepare(ctx context.Context, spec BuildSpec, rebuild bool) (PrepareResult, error) {
	reason := ""
	switch {
	case rebuild:
		reason = "rebuild requested"
	case !ix.Exists():
		reason = "no index found"
	default:
		m, err := ix.ReadManifest()
		if err != nil {
			return PrepareResult{}, err
		}
		if m.Fingerprint != spec.Fingerprint {
			reason = "document or settings changed since the index was built"
			break
		}
		ix.status("Loading index from %s", ix.opts.Dir)
		if err := ix.Load(ctx); err != nil {
			return PrepareResult{}, err
		}
		ix.status("Loaded %d chunks", ix.Count())
		return PrepareResult{Chunks: ix.Count()}, nil
	}

	ix.status("Building index at %s: %s", ix.opts.Dir, reason)
	pages, err := spec.Pages(ctx)
	if err != nil {
		return PrepareResult{}, err
	}
	ix.status("Loaded %d pages from %s", len(pages), spec.Document)
	chunks := spec.Chunker.Split(pages)
	ix.status("Split into %d chunks (size %d, overlap %d)", len(chunks), spec.Chunker.Size, spec.Chunker.Overlap)

	m := Manifest{
		Fingerprint:  spec.Fingerprint,
		Document:     spec.Document,
		ChunkSize:    spec.Chunker.Size,
		ChunkOverlap: spec.Chunker.Overlap,
	}
	if err := ix.Build(ctx, chunks, m); err != nil {
		return PrepareResult{}, err
	}
	return PrepareResult{Built: true, Reason: reason, Chunks: ix.Count()}, nil
}
