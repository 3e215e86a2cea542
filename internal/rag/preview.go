package rag

import (
	"fmt"
	"io"

	"github.com/mwiater/docqa/internal/util"
)

// WritePreview prints the retrieval result and the assembled prompt without generating.
// maxChunkRunes limits each printed chunk; zero prints chunks in full.
func WritePreview(w io.Writer, rc RetrievedContext, prompt Prompt, maxChunkRunes int) {
	status := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
	}

	status("[RAG] Preview query: %s", rc.Query)
	status("[RAG] retrieval_ms: %d", rc.RetrievalMs)
	status("[RAG] chunks: %d (dropped to fit budget: %d)", len(rc.Chunks), prompt.Dropped)
	status("[RAG] prompt_runes: %d", prompt.Size())

	for i, chunk := range rc.Chunks {
		text := chunk.Chunk.Text
		if maxChunkRunes > 0 {
			text = util.Snippet(text, maxChunkRunes)
		}
		status("[RAG] chunk %d score=%.6f id=%s page=%d", i+1, chunk.Score, chunk.Chunk.ID, chunk.Chunk.Page)
		status("[RAG] chunk %d text: %s", i+1, text)
	}

	status("[RAG] system:\n%s", prompt.System)
	status("[RAG] prompt:\n%s", prompt.Text)
}
