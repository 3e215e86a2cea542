// internal/providers/provider.go

// Package providers defines the interfaces for talking to embedding and generation models.
// It provides a common abstraction layer over the Ollama and OpenAI-compatible backends so that
// indexing, retrieval and answer synthesis do not depend on a specific provider implementation.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrModelNotFound is returned when the host does not have the requested model.
	ErrModelNotFound = errors.New("model not found")
	// ErrProviderUnavailable is returned when the host cannot be reached or fails the request.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrEmbeddingCount is returned when a provider answers with a different number of vectors than requested.
	ErrEmbeddingCount = errors.New("embedding count mismatch")
)

// Embedder maps texts to fixed-dimensionality vectors.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model returns the embedding model name.
	Model() string
}

// GenerateRequest is a single answer synthesis request.
type GenerateRequest struct {
	System string
	Prompt string
}

// GenerateResult holds the generated text plus the metrics reported by the host.
type GenerateResult struct {
	Model           string
	Text            string
	PromptEvalCount int
	EvalCount       int
	TotalDuration   time.Duration
}

// StreamCallbacks defines the callback invoked for every generated text fragment.
// Returning an error from OnChunk aborts generation.
type StreamCallbacks struct {
	OnChunk func(string) error
}

// Generator produces free text from a prompt.
type Generator interface {
	// Generate runs the model to completion. When callbacks.OnChunk is set, text is delivered
	// incrementally as it is produced; the full text is always returned in GenerateResult.
	Generate(ctx context.Context, req GenerateRequest, callbacks StreamCallbacks) (GenerateResult, error)
	// Model returns the generation model name.
	Model() string
}

// ModelChecker verifies that a model is available on its host.
type ModelChecker interface {
	EnsureModelReady(ctx context.Context, model string) error
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrEmbeddingCount, len(vectors))
	}
	return vectors[0], nil
}

// BatchEmbed embeds texts in batches of at most batchSize and returns the vectors in input order.
// progress, when non-nil, is called after each batch with the number of texts embedded so far.
func BatchEmbed(ctx context.Context, e Embedder, texts []string, batchSize int, progress func(done, total int)) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed texts %d-%d: %w", start+1, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: sent %d texts, received %d vectors", ErrEmbeddingCount, end-start, len(batch))
		}
		vectors = append(vectors, batch...)
		if progress != nil {
			progress(len(vectors), len(texts))
		}
	}
	return vectors, nil
}
