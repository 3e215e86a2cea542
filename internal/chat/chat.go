// Package chat runs the interactive question loop over a prepared document.
package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/providers"
	"github.com/mwiater/docqa/internal/rag"
	"github.com/mwiater/docqa/internal/util"
)

// State is the session lifecycle position.
type State int

const (
	AwaitingInput State = iota
	Processing
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting-input"
	case Processing:
		return "processing"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Answerer answers one question at a time.
type Answerer interface {
	Answer(ctx context.Context, query string, callbacks providers.StreamCallbacks) (rag.Answer, error)
}

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	errorText  = color.New(color.FgRed).SprintFunc()
	sourceText = color.New(color.FgCyan).SprintFunc()
)

const (
	maxLineBytes = 1024 * 1024
	hintText     = "Ask a question about the document. Type exit or quit to leave."
)

// isTerminal reports whether f is an interactive terminal.
var isTerminal = func(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Session reads questions from in and writes answers to out until the user exits,
// input ends, or the context is cancelled.
type Session struct {
	in       io.Reader
	out      io.Writer
	answerer Answerer

	title        string
	stream       bool
	snippetRunes int

	mu    sync.Mutex
	state State
}

// Option configures a Session.
type Option func(*Session)

// WithTitle sets the banner line printed when the session starts.
func WithTitle(title string) Option {
	return func(s *Session) { s.title = title }
}

// WithStreaming prints answer fragments as they are generated.
func WithStreaming(enabled bool) Option {
	return func(s *Session) { s.stream = enabled }
}

// WithSourceSnippets prints each source chunk shortened to n runes. Zero hides snippets.
func WithSourceSnippets(n int) Option {
	return func(s *Session) { s.snippetRunes = n }
}

// New returns a session in the AwaitingInput state.
func New(in io.Reader, out io.Writer, answerer Answerer, opts ...Option) *Session {
	s := &Session{
		in:           in,
		out:          out,
		answerer:     answerer,
		title:        "docqa",
		stream:       true,
		snippetRunes: 80,
		state:        AwaitingInput,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run drives the session. A terminal on stdin gets the full-screen view; any other reader
// is consumed line by line. A failed question is reported and the session continues; only
// input or terminal errors are returned.
func (s *Session) Run(ctx context.Context) error {
	if f, ok := s.in.(*os.File); ok && isTerminal(f) {
		return s.runTerminal(ctx, f)
	}
	return s.runLines(ctx)
}

func (s *Session) runLines(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	fmt.Fprintln(s.out, bannerStyle.Render(s.title))
	fmt.Fprintln(s.out, hintStyle.Render(hintText))

	for {
		s.setState(AwaitingInput)
		fmt.Fprint(s.out, promptStyle.Render("> "))

		var line string
		select {
		case <-ctx.Done():
			s.terminate()
			return nil
		case err := <-readErr:
			s.terminate()
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		case line = <-lines:
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if isExit(query) {
			s.terminate()
			return nil
		}

		s.setState(Processing)
		s.ask(ctx, query)
		if ctx.Err() != nil {
			s.terminate()
			return nil
		}
	}
}

func (s *Session) terminate() {
	s.setState(Terminated)
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, hintStyle.Render("Goodbye."))
}

func (s *Session) ask(ctx context.Context, query string) {
	streamed := false
	var callbacks providers.StreamCallbacks
	if s.stream {
		callbacks.OnChunk = func(chunk string) error {
			if chunk == "" {
				return nil
			}
			streamed = true
			_, err := io.WriteString(s.out, chunk)
			return err
		}
	}

	answer, err := s.answerer.Answer(ctx, query, callbacks)
	if err != nil {
		if streamed {
			fmt.Fprintln(s.out)
		}
		logging.LogEvent("question failed: %v", err)
		fmt.Fprintf(s.out, "%s %v\n", errorText("Error:"), err)
		return
	}
	if !streamed {
		fmt.Fprint(s.out, answer.Text)
	}
	fmt.Fprintln(s.out)
	for _, line := range sourceLines(answer, s.snippetRunes) {
		fmt.Fprintln(s.out, line)
	}
}

// isExit reports whether a trimmed input line ends the session.
func isExit(query string) bool {
	switch strings.ToLower(query) {
	case "exit", "quit":
		return true
	}
	return false
}

// sourceLines renders the cited pages of answer, followed by one snippet per source chunk
// when snippetRunes is positive.
func sourceLines(answer rag.Answer, snippetRunes int) []string {
	pages := answer.Pages()
	if len(pages) == 0 {
		return []string{sourceText("Sources: none")}
	}
	labels := make([]string, len(pages))
	for i, p := range pages {
		labels[i] = fmt.Sprintf("page %d", p)
	}
	lines := []string{sourceText("Sources: " + strings.Join(labels, ", "))}
	if snippetRunes <= 0 {
		return lines
	}
	for _, src := range answer.Sources {
		lines = append(lines, hintStyle.Render(fmt.Sprintf("  [page %d] %s", src.Chunk.Page, util.Snippet(src.Chunk.Text, snippetRunes))))
	}
	return lines
}
