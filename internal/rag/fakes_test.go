package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/mwiater/docqa/internal/providers"
)

// vocabEmbedder embeds text as a bag of known words. Unknown words are ignored.
type vocabEmbedder struct {
	mu    sync.Mutex
	vocab map[string]int
	calls int
	texts int
	err   error
}

func newVocabEmbedder(words ...string) *vocabEmbedder {
	vocab := make(map[string]int, len(words))
	for i, w := range words {
		vocab[w] = i
	}
	return &vocabEmbedder{vocab: vocab}
}

func (e *vocabEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.texts += len(texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(e.vocab))
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
		for _, w := range words {
			if idx, ok := e.vocab[w]; ok {
				vec[idx]++
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *vocabEmbedder) Model() string { return "vocab" }

func (e *vocabEmbedder) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls, e.texts = 0, 0
}

// recordingGenerator captures every request and answers with a fixed text.
type recordingGenerator struct {
	requests []providers.GenerateRequest
	answer   string
	err      error
}

func (g *recordingGenerator) Generate(_ context.Context, req providers.GenerateRequest, cb providers.StreamCallbacks) (providers.GenerateResult, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return providers.GenerateResult{}, g.err
	}
	if cb.OnChunk != nil {
		if err := cb.OnChunk(g.answer); err != nil {
			return providers.GenerateResult{}, err
		}
	}
	return providers.GenerateResult{Model: "fake", Text: g.answer}, nil
}

func (g *recordingGenerator) Model() string { return "fake" }

var errProviderDown = errors.New("provider down")
