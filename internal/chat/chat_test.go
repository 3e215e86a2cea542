package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/docqa/internal/providers"
	"github.com/mwiater/docqa/internal/rag"
)

type fakeAnswerer struct {
	queries []string
	answers map[string]rag.Answer
	errs    map[string]error
	chunks  []string
}

func (f *fakeAnswerer) Answer(_ context.Context, query string, cb providers.StreamCallbacks) (rag.Answer, error) {
	f.queries = append(f.queries, query)
	if err := f.errs[query]; err != nil {
		return rag.Answer{}, err
	}
	if cb.OnChunk != nil {
		for _, c := range f.chunks {
			if err := cb.OnChunk(c); err != nil {
				return rag.Answer{}, err
			}
		}
	}
	return f.answers[query], nil
}

func parisAnswer() rag.Answer {
	return rag.Answer{
		Query: "Where does Alice live?",
		Text:  "Alice lives in Paris.",
		Sources: []rag.ScoredChunk{
			{Chunk: rag.Chunk{ID: "p1-c0", Text: "Alice lives\n in Paris", Page: 1}},
			{Chunk: rag.Chunk{ID: "p3-c2", Text: "Paris is in France", Page: 3}},
		},
	}
}

func TestRunExitAfterTrimAndCase(t *testing.T) {
	answerer := &fakeAnswerer{}
	var out bytes.Buffer
	s := New(strings.NewReader("  EXIT  \nWhere does Alice live?\n"), &out, answerer)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(answerer.queries) != 0 {
		t.Fatalf("expected no questions answered, got %v", answerer.queries)
	}
	if s.State() != Terminated {
		t.Fatalf("expected terminated state, got %s", s.State())
	}
	if !strings.Contains(out.String(), "Goodbye.") {
		t.Fatalf("expected goodbye message, got %q", out.String())
	}
}

func TestRunQuitAndEOF(t *testing.T) {
	for _, input := range []string{"quit\n", "Quit", ""} {
		var out bytes.Buffer
		s := New(strings.NewReader(input), &out, &fakeAnswerer{})
		if err := s.Run(context.Background()); err != nil {
			t.Fatalf("input %q: Run returned error: %v", input, err)
		}
		if s.State() != Terminated {
			t.Fatalf("input %q: expected terminated state, got %s", input, s.State())
		}
	}
}

func TestRunAnswersWithSources(t *testing.T) {
	answerer := &fakeAnswerer{
		answers: map[string]rag.Answer{"Where does Alice live?": parisAnswer()},
	}
	var out bytes.Buffer
	s := New(strings.NewReader("Where does Alice live?\nexit\n"), &out, answerer, WithStreaming(false), WithSourceSnippets(11))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Alice lives in Paris.", "Sources: page 1, page 3", "[page 1] Alice lives…", "[page 3] Paris is in…"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestRunStreamsFragments(t *testing.T) {
	answerer := &fakeAnswerer{
		answers: map[string]rag.Answer{"q": {Text: "Hello world"}},
		chunks:  []string{"Hel", "lo ", "world"},
	}
	var out bytes.Buffer
	s := New(strings.NewReader("q\n"), &out, answerer)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	got := out.String()
	if strings.Count(got, "Hello world") != 1 {
		t.Fatalf("expected the answer printed exactly once, got %q", got)
	}
	if !strings.Contains(got, "Sources: none") {
		t.Fatalf("expected an empty sources line, got %q", got)
	}
}

func TestRunContinuesAfterError(t *testing.T) {
	answerer := &fakeAnswerer{
		answers: map[string]rag.Answer{"second": {Text: "fine"}},
		errs:    map[string]error{"first": errors.New("provider unavailable")},
	}
	var out bytes.Buffer
	s := New(strings.NewReader("first\nsecond\n"), &out, answerer, WithStreaming(false))

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(answerer.queries) != 2 {
		t.Fatalf("expected both questions asked, got %v", answerer.queries)
	}
	got := out.String()
	if !strings.Contains(got, "Error: provider unavailable") {
		t.Fatalf("expected inline error, got %q", got)
	}
	if !strings.Contains(got, "fine") {
		t.Fatalf("expected the second answer, got %q", got)
	}
}

func TestRunSkipsBlankLines(t *testing.T) {
	answerer := &fakeAnswerer{answers: map[string]rag.Answer{"q": {Text: "a"}}}
	s := New(strings.NewReader("\n   \n\t\nq\n\n"), io.Discard, answerer)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(answerer.queries) != 1 || answerer.queries[0] != "q" {
		t.Fatalf("expected only the non-blank question, got %v", answerer.queries)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(pr, io.Discard, &fakeAnswerer{})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if s.State() != Terminated {
		t.Fatalf("expected terminated state, got %s", s.State())
	}
}
