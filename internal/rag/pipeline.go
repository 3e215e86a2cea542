package rag

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/providers"
)

// Answer is the outcome of one question.
type Answer struct {
	ID           string
	Query        string
	Text         string
	Model        string
	Sources      []ScoredChunk
	Dropped      int
	RetrievalMs  int64
	GenerationMs int64
}

// Pages returns the distinct pages the answer was grounded on.
func (a Answer) Pages() []int {
	return pagesOf(a.Sources)
}

// Pipeline runs retrieve, assemble and generate for one question at a time.
type Pipeline struct {
	retriever *Retriever
	assembler *Assembler
	generator providers.Generator
}

// NewPipeline wires the query path.
func NewPipeline(retriever *Retriever, assembler *Assembler, generator providers.Generator) *Pipeline {
	return &Pipeline{retriever: retriever, assembler: assembler, generator: generator}
}

// Preview retrieves and assembles without generating.
func (p *Pipeline) Preview(ctx context.Context, query string) (RetrievedContext, Prompt, error) {
	rc, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		return RetrievedContext{}, Prompt{}, err
	}
	return rc, p.assembler.Assemble(rc), nil
}

// Answer answers query from the indexed document. The generator is invoked even when no
// chunk was retrieved. Text fragments are passed to callbacks.OnChunk as they are generated.
func (p *Pipeline) Answer(ctx context.Context, query string, callbacks providers.StreamCallbacks) (Answer, error) {
	id := uuid.NewString()
	log := logging.Logger().With().Str("query_id", id).Logger()

	rc, prompt, err := p.Preview(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("retrieval failed")
		return Answer{}, err
	}
	log.Info().
		Int("chunks", len(rc.Chunks)).
		Ints("pages", rc.Pages()).
		Int64("retrieval_ms", rc.RetrievalMs).
		Msg("retrieved context")
	if prompt.Dropped > 0 {
		log.Warn().Int("dropped", prompt.Dropped).Int("budget", p.assembler.Budget).Msg("context trimmed to fit budget")
	}
	if p.assembler.Budget > 0 && prompt.Size() > p.assembler.Budget {
		log.Warn().Int("size", prompt.Size()).Int("budget", p.assembler.Budget).Msg("question alone exceeds the context budget")
	}

	start := time.Now()
	result, err := p.generator.Generate(ctx, providers.GenerateRequest{
		System: prompt.System,
		Prompt: prompt.Text,
	}, callbacks)
	if err != nil {
		log.Error().Err(err).Msg("generation failed")
		return Answer{}, err
	}
	answer := Answer{
		ID:           id,
		Query:        query,
		Text:         result.Text,
		Model:        result.Model,
		Sources:      prompt.Chunks,
		Dropped:      prompt.Dropped,
		RetrievalMs:  rc.RetrievalMs,
		GenerationMs: time.Since(start).Milliseconds(),
	}
	log.Info().
		Str("model", answer.Model).
		Int64("generation_ms", answer.GenerationMs).
		Int("eval_count", result.EvalCount).
		Msg("answered")
	return answer, nil
}
