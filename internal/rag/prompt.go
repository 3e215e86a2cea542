package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SystemInstruction directs the model to stay within the retrieved context.
const SystemInstruction = "Answer the following question based only on the provided context. " +
	"Think step by step before providing a detailed answer. " +
	"If the context does not contain the answer, say that you cannot find it in the document."

// Prompt is a rendered generation request.
type Prompt struct {
	System string
	Text   string
	// Chunks are the chunks included in Text, in rank order.
	Chunks []ScoredChunk
	// Dropped counts the lowest-ranked chunks left out to fit the budget.
	Dropped int
}

// Size returns the prompt length in runes, system instruction included.
func (p Prompt) Size() int {
	return utf8.RuneCountInString(p.System) + utf8.RuneCountInString(p.Text)
}

// Assembler renders retrieved chunks and the question within a size budget.
type Assembler struct {
	// Budget is the maximum Prompt.Size. Zero or less means unlimited.
	Budget int
	System string
}

// NewAssembler returns an Assembler using SystemInstruction.
func NewAssembler(budget int) *Assembler {
	return &Assembler{Budget: budget, System: SystemInstruction}
}

// Assemble renders rc. When the prompt exceeds the budget, the lowest-ranked chunks are
// dropped one at a time until it fits. The question is never shortened, so a question that
// alone exceeds the budget yields a prompt with an empty context.
func (a *Assembler) Assemble(rc RetrievedContext) Prompt {
	chunks := rc.Chunks
	for {
		p := Prompt{
			System:  a.System,
			Text:    Render(chunks, rc.Query),
			Chunks:  chunks,
			Dropped: len(rc.Chunks) - len(chunks),
		}
		if a.Budget <= 0 || p.Size() <= a.Budget || len(chunks) == 0 {
			return p
		}
		chunks = chunks[:len(chunks)-1]
	}
}

// Render builds the user prompt: a delimited context block followed by the question.
func Render(chunks []ScoredChunk, query string) string {
	var b strings.Builder
	b.WriteString("<context>\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[page %d]\n", c.Chunk.Page)
		b.WriteString(c.Chunk.Text)
		if !strings.HasSuffix(c.Chunk.Text, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("</context>\n\n")
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
