package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/agentcall/pkg/session"
)

// ViewMsg carries a rendered view state into the bubbletea loop.
type ViewMsg struct {
	View session.ViewState
}

// ScrollMsg asks the transcript viewport to jump to its end.
type ScrollMsg struct{}

// Shell forwards controller callbacks to the bubbletea model through a
// buffered channel drained by waitForUIEvent.
type Shell struct {
	events chan tea.Msg
}

var _ session.Shell = &Shell{}

func NewShell(buffer int) *Shell {
	if buffer <= 0 {
		buffer = 256
	}
	return &Shell{events: make(chan tea.Msg, buffer)}
}

func (s *Shell) Render(v session.ViewState) { s.events <- ViewMsg{View: v} }

func (s *Shell) ScrollToBottom() { s.events <- ScrollMsg{} }

func (s *Shell) Events() <-chan tea.Msg { return s.events }

func waitForUIEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return e
	}
}
