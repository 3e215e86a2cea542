package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/providers"
	"github.com/mwiater/docqa/internal/rag"
)

const (
	headerHeight = 3
	footerHeight = 2
)

var statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

// answerChunkMsg carries one streamed fragment of the current answer.
type answerChunkMsg string

// answerDoneMsg ends the current question.
type answerDoneMsg struct {
	answer rag.Answer
	err    error
}

// model is the terminal view of a Session: a scrolling transcript above a single-line input.
type model struct {
	ctx     context.Context
	session *Session

	input      textinput.Model
	viewport   viewport.Model
	transcript strings.Builder
	state      State
	ready      bool

	events   chan tea.Msg
	cancel   context.CancelFunc
	streamed bool
}

func newModel(ctx context.Context, s *Session) *model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = promptStyle
	ti.Placeholder = "Ask a question..."
	ti.CharLimit = 0
	ti.Focus()

	return &model{
		ctx:      ctx,
		session:  s,
		input:    ti,
		viewport: viewport.New(0, 0),
		state:    AwaitingInput,
	}
}

// runTerminal runs the full-screen session until the user quits or ctx is cancelled.
func (s *Session) runTerminal(ctx context.Context, in *os.File) error {
	m := newModel(ctx, s)
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(s.out),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	m.stopAnswer()
	s.terminate()
	if err != nil && ctx.Err() == nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run chat: %w", err)
	}
	return nil
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) setState(state State) {
	m.state = state
	m.session.setState(state)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.input.Width = max(10, msg.Width-4)
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-headerHeight-footerHeight)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, m.quit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			return m, m.submit()
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case answerChunkMsg:
		m.streamed = true
		m.transcript.WriteString(string(msg))
		m.refresh()
		return m, waitForEvent(m.events)

	case answerDoneMsg:
		m.finish(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles Enter. Input is ignored while an answer is in progress.
func (m *model) submit() tea.Cmd {
	if m.state != AwaitingInput {
		return nil
	}
	query := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if query == "" {
		return nil
	}
	if isExit(query) {
		return m.quit()
	}

	m.setState(Processing)
	m.streamed = false
	m.transcript.WriteString(promptStyle.Render("> ") + query + "\n")
	m.refresh()
	return m.ask(query)
}

// ask answers query in the background. Fragments and the final result arrive as messages
// read one at a time from m.events.
func (m *model) ask(query string) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	events := make(chan tea.Msg)
	m.events = events
	m.cancel = cancel

	send := func(msg tea.Msg) bool {
		select {
		case events <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var callbacks providers.StreamCallbacks
	if m.session.stream {
		callbacks.OnChunk = func(chunk string) error {
			if chunk == "" {
				return nil
			}
			if !send(answerChunkMsg(chunk)) {
				return ctx.Err()
			}
			return nil
		}
	}

	answerer := m.session.answerer
	go func() {
		answer, err := answerer.Answer(ctx, query, callbacks)
		send(answerDoneMsg{answer: answer, err: err})
	}()
	return waitForEvent(events)
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		return <-events
	}
}

func (m *model) finish(msg answerDoneMsg) {
	m.stopAnswer()
	if msg.err != nil {
		if m.streamed {
			m.transcript.WriteString("\n")
		}
		logging.LogEvent("question failed: %v", msg.err)
		m.transcript.WriteString(fmt.Sprintf("%s %v\n\n", errorText("Error:"), msg.err))
	} else {
		if !m.streamed {
			m.transcript.WriteString(msg.answer.Text)
		}
		m.transcript.WriteString("\n")
		for _, line := range sourceLines(msg.answer, m.session.snippetRunes) {
			m.transcript.WriteString(line + "\n")
		}
		m.transcript.WriteString("\n")
	}
	m.setState(AwaitingInput)
	m.refresh()
}

func (m *model) stopAnswer() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.events = nil
}

func (m *model) quit() tea.Cmd {
	m.stopAnswer()
	m.setState(Terminated)
	return tea.Quit
}

// refresh re-wraps the transcript to the viewport width and keeps the newest text visible.
func (m *model) refresh() {
	content := m.transcript.String()
	if m.viewport.Width > 0 {
		content = lipgloss.NewStyle().Width(m.viewport.Width).Render(content)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m *model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.state == Terminated {
		return ""
	}

	status := hintStyle.Render(hintText)
	if m.state == Processing {
		status = statusStyle.Render("Answering...")
	}
	header := bannerStyle.Render(m.session.title) + "\n" + status + "\n"
	return header + "\n" + m.viewport.View() + "\n\n" + m.input.View()
}
