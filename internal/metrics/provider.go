// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/docqa/internal/providers"
)

// Embedder is a decorator that wraps a providers.Embedder to record metrics.
type Embedder struct {
	wrapped    providers.Embedder
	aggregator *Aggregator
}

// NewEmbedder wraps an Embedder with metrics collection.
func NewEmbedder(wrapped providers.Embedder, aggregator *Aggregator) *Embedder {
	return &Embedder{wrapped: wrapped, aggregator: aggregator}
}

// Embed intercepts the call to the wrapped embedder to record its latency.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.wrapped.Embed(ctx, texts)
	e.aggregator.Record(Call{
		Kind:     KindEmbedding,
		Model:    e.wrapped.Model(),
		Texts:    len(texts),
		Duration: time.Since(start),
		Err:      err,
	})
	return vectors, err
}

// Model passes the call through to the wrapped embedder.
func (e *Embedder) Model() string {
	return e.wrapped.Model()
}

// EnsureModelReady passes the call through when the wrapped embedder supports it.
func (e *Embedder) EnsureModelReady(ctx context.Context, model string) error {
	return ensureReady(ctx, e.wrapped, model)
}

// Generator is a decorator that wraps a providers.Generator to record metrics.
type Generator struct {
	wrapped    providers.Generator
	aggregator *Aggregator
}

// NewGenerator wraps a Generator with metrics collection.
func NewGenerator(wrapped providers.Generator, aggregator *Aggregator) *Generator {
	return &Generator{wrapped: wrapped, aggregator: aggregator}
}

// Generate intercepts the call to the wrapped generator to record time to first token and token counts.
func (g *Generator) Generate(ctx context.Context, req providers.GenerateRequest, callbacks providers.StreamCallbacks) (providers.GenerateResult, error) {
	start := time.Now()
	var ttft time.Duration
	firstChunkReceived := false

	wrappedCallbacks := callbacks
	if callbacks.OnChunk != nil {
		wrappedCallbacks.OnChunk = func(chunk string) error {
			if !firstChunkReceived {
				ttft = time.Since(start)
				firstChunkReceived = true
			}
			return callbacks.OnChunk(chunk)
		}
	}

	result, err := g.wrapped.Generate(ctx, req, wrappedCallbacks)
	elapsed := time.Since(start)
	if !firstChunkReceived {
		ttft = elapsed
	}
	g.aggregator.Record(Call{
		Kind:         KindGeneration,
		Model:        g.wrapped.Model(),
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		TTFT:         ttft,
		Duration:     elapsed,
		Err:          err,
	})
	return result, err
}

// Model passes the call through to the wrapped generator.
func (g *Generator) Model() string {
	return g.wrapped.Model()
}

// EnsureModelReady passes the call through when the wrapped generator supports it.
func (g *Generator) EnsureModelReady(ctx context.Context, model string) error {
	return ensureReady(ctx, g.wrapped, model)
}

// ensureReady is a no-op for providers that cannot check models.
func ensureReady(ctx context.Context, wrapped any, model string) error {
	checker, ok := wrapped.(providers.ModelChecker)
	if !ok {
		return nil
	}
	return checker.EnsureModelReady(ctx, model)
}
