package docqa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mwiater/docqa/internal/appconfig"
	"github.com/mwiater/docqa/internal/document"
	"github.com/mwiater/docqa/internal/metrics"
	"github.com/mwiater/docqa/internal/providerfactory"
	"github.com/mwiater/docqa/internal/providers"
	"github.com/mwiater/docqa/internal/rag"
)

var (
	// newEmbedder and newGenerator are swapped in tests.
	newEmbedder  = providerfactory.NewEmbedder
	newGenerator = providerfactory.NewGenerator

	stdin io.Reader = os.Stdin
)

type appOptions struct {
	rebuild  bool
	generate bool
}

// app holds everything one command invocation needs to answer questions.
type app struct {
	cfg        *appconfig.Config
	out        io.Writer
	index      *rag.Index
	pipeline   *rag.Pipeline
	aggregator *metrics.Aggregator
	prepared   rag.PrepareResult
	generator  providers.Generator
}

// newApp validates the configuration, checks the models, and prepares the index. The
// generation model is only resolved when opts.generate is set.
func newApp(ctx context.Context, cfg *appconfig.Config, out io.Writer, opts appOptions) (*app, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	chunker, err := rag.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	docHash, err := document.Fingerprint(cfg.Document)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, out: out}
	if cfg.Metrics {
		a.aggregator = metrics.NewAggregator(cfg.MetricsFile)
	}

	embedder, err := newEmbedder(cfg, a.aggregator)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := ensureReady(ctx, cfg, embedder, cfg.EmbeddingModel); err != nil {
		a.close()
		return nil, err
	}

	var generator providers.Generator
	if opts.generate {
		generator, err = newGenerator(cfg, a.aggregator)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := ensureReady(ctx, cfg, generator, cfg.GenerationModel); err != nil {
			a.close()
			return nil, err
		}
		a.generator = generator
	}

	host, err := cfg.Host(cfg.EmbeddingHost)
	if err != nil {
		a.close()
		return nil, err
	}
	a.index = rag.NewIndex(rag.IndexOptions{
		Dir:        cfg.IndexPath,
		Backend:    cfg.IndexBackend,
		Collection: cfg.Collection,
		BatchSize:  cfg.EmbedBatchSize,
	}, embedder)
	a.index.SetProgress(out)

	spec := rag.BuildSpec{
		Fingerprint: rag.Fingerprint(docHash, chunker, host.Type, cfg.EmbeddingModel, cfg.IndexBackend),
		Document:    cfg.Document,
		Chunker:     chunker,
		Pages: func(ctx context.Context) ([]document.Page, error) {
			doc, err := document.Load(ctx, cfg.Document)
			if err != nil {
				return nil, err
			}
			return doc.Pages, nil
		},
	}
	a.prepared, err = a.index.Prepare(ctx, spec, opts.rebuild)
	if err != nil {
		a.close()
		return nil, err
	}

	retriever := rag.NewRetriever(a.index, embedder, cfg.TopK)
	a.pipeline = rag.NewPipeline(retriever, rag.NewAssembler(cfg.ContextBudget), generator)
	return a, nil
}

func ensureReady(ctx context.Context, cfg *appconfig.Config, provider any, model string) error {
	checker, ok := provider.(providers.ModelChecker)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer cancel()
	return checker.EnsureModelReady(ctx, model)
}

// close releases the index and flushes metrics.
func (a *app) close() {
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.aggregator != nil {
		a.aggregator.WriteSummary(a.out)
		if err := a.aggregator.Close(); err != nil {
			fmt.Fprintf(a.out, "failed to save metrics: %v\n", err)
		}
		a.aggregator = nil
	}
}
