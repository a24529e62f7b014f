package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/leonardotrapani/livescribe/internal/manager"
	"github.com/leonardotrapani/livescribe/internal/session"
)

const (
	placeholderIdle      = "Push Start to Recognize Your Speech"
	placeholderListening = "(please speak)"
)

type stateMsg manager.State

type streamClosedMsg struct{}

type toggleDoneMsg struct{ err error }

// WatchModel renders the daemon's published state and toggles recognition
// on space or enter.
type WatchModel struct {
	states <-chan manager.State
	toggle func() error

	state    manager.State
	received bool
	closed   bool
	pending  bool
	err      error
	width    int
}

func NewWatchModel(states <-chan manager.State, toggle func() error) WatchModel {
	return WatchModel{
		states: states,
		toggle: toggle,
		state:  manager.State{Status: session.Idle, Available: true},
	}
}

func waitForState(ch <-chan manager.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return stateMsg(st)
	}
}

func (m WatchModel) Init() tea.Cmd {
	return waitForState(m.states)
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case " ", "space", "enter":
			if !m.canToggle() {
				return m, nil
			}
			m.pending = true
			toggle := m.toggle
			return m, func() tea.Msg { return toggleDoneMsg{err: toggle()} }
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case stateMsg:
		m.state = manager.State(msg)
		m.received = true
		return m, waitForState(m.states)

	case streamClosedMsg:
		m.closed = true

	case toggleDoneMsg:
		m.pending = false
		m.err = msg.err
	}
	return m, nil
}

// canToggle reports whether the start/stop action is enabled. Starting needs
// an available backend; stopping is always allowed.
func (m WatchModel) canToggle() bool {
	if m.closed || m.pending || m.toggle == nil {
		return false
	}
	return m.state.Status.Running() || m.state.Available
}

// ButtonLabel is the text of the start/stop action for the current state.
func (m WatchModel) ButtonLabel() string {
	switch {
	case m.state.Status.Running():
		return "Stop"
	case !m.state.Available:
		return "Recognition Not Available"
	default:
		return "Start"
	}
}

// TranscriptText returns the transcript or the placeholder shown instead.
func TranscriptText(st manager.State) string {
	if st.Transcript != "" {
		return st.Transcript
	}
	if st.Status.Running() {
		return placeholderListening
	}
	return placeholderIdle
}

func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(Logo())
	b.WriteString("\n\n")

	b.WriteString(StatusBadge(m.state.Status))
	if m.state.Available {
		b.WriteString("  " + StyleSuccess.Render("backend available"))
	} else {
		b.WriteString("  " + StyleWarning.Render("backend unavailable"))
	}
	if m.state.Dropped > 0 {
		b.WriteString("  " + StyleWarning.Render(fmt.Sprintf("%d frames dropped", m.state.Dropped)))
	}
	b.WriteString("\n\n")

	box := StyleBox
	if m.state.Status == session.Listening {
		box = StyleFocusedBox
	}
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	text := TranscriptText(m.state)
	if m.state.Transcript == "" {
		text = StyleSubtle.Render(text)
	}
	b.WriteString(box.Render(text))
	b.WriteString("\n")

	if m.state.Reason != "" {
		b.WriteString(StyleError.Render("Error: "+m.state.Reason) + "\n")
	}
	if m.err != nil {
		b.WriteString(StyleError.Render("Command failed: "+m.err.Error()) + "\n")
	}
	if m.closed {
		b.WriteString(StyleWarning.Render("Disconnected from daemon") + "\n")
	}

	b.WriteString("\n")
	button := StyleLabel.Render("[" + m.ButtonLabel() + "]")
	if !m.canToggle() {
		button = StyleMuted.Render("[" + m.ButtonLabel() + "]")
	}
	b.WriteString(button + "  " + StyleMuted.Render("space start/stop • q quit"))
	b.WriteString("\n")
	return b.String()
}

// Watch runs the watch view until the user quits or ctx is done.
func Watch(ctx context.Context, states <-chan manager.State, toggle func() error) error {
	p := tea.NewProgram(NewWatchModel(states, toggle), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
