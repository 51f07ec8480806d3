// Package ui is the terminal presentation shell: a bubbletea program showing
// the call phase, control bar, pre-connect buffer and the transcript.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	bspinner "github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/agentcall/pkg/session"
	"github.com/go-go-golems/agentcall/pkg/transcript"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	phaseStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	localStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	remoteStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Italic(true)
	enabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("118"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Controller is the part of *session.Controller the terminal drives.
type Controller interface {
	StartCall(ctx context.Context) error
	LeaveCall(ctx context.Context) error
	ToggleChatOpen() bool
	TypePreConnectText(text string) error
	SendChat(ctx context.Context, text string) error
	Snapshot() session.ViewState
}

type actionErrMsg struct{ err error }

type Model struct {
	ctrl     Controller
	events   <-chan tea.Msg
	view     session.ViewState
	spinner  bspinner.Model
	viewport viewport.Model
	input    textinput.Model
	markdown *glamour.TermRenderer
	width    int
	status   string
	err      string
}

func NewModel(ctrl Controller, events <-chan tea.Msg) Model {
	sp := bspinner.New()
	sp.Spinner = bspinner.Line
	sp.Style = phaseStyle

	vp := viewport.New(80, 12)
	vp.Style = lipgloss.NewStyle()

	ti := textinput.New()
	ti.Placeholder = "type to the agent (enter to send)"
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Width = 78
	ti.Focus()

	m := Model{
		ctrl:     ctrl,
		events:   events,
		view:     ctrl.Snapshot(),
		spinner:  sp,
		viewport: vp,
		input:    ti,
		width:    80,
	}
	m.markdown = newMarkdownRenderer(m.width)
	m.viewport.SetContent(m.transcript())
	return m
}

func newMarkdownRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForUIEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = ev.Width
		m.viewport.Width = ev.Width
		if h := ev.Height - 8; h > 3 {
			m.viewport.Height = h
		}
		m.input.Width = ev.Width - 4
		m.markdown = newMarkdownRenderer(ev.Width - 2)
		m.viewport.SetContent(m.transcript())
		return m, nil
	case ViewMsg:
		m.view = ev.View
		m.viewport.SetContent(m.transcript())
		return m, waitForUIEvent(m.events)
	case ScrollMsg:
		m.viewport.GotoBottom()
		return m, waitForUIEvent(m.events)
	case actionErrMsg:
		if ev.err != nil {
			m.err = ev.err.Error()
		} else {
			m.err = ""
		}
		return m, nil
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(ev); handled {
			return m, cmd
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	if m.view.Phase == session.PhaseConnecting {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleKey maps keys to controller actions. Controller calls run as
// commands so the bubbletea loop never blocks on the controller.
func (m *Model) handleKey(k tea.KeyMsg) (tea.Cmd, bool) {
	switch k.String() {
	case "ctrl+c":
		return tea.Quit, true
	case "ctrl+s":
		return m.act(func(ctx context.Context) error { return m.ctrl.StartCall(ctx) }), true
	case "ctrl+l":
		return m.act(func(ctx context.Context) error { return m.ctrl.LeaveCall(ctx) }), true
	case "ctrl+t":
		return m.act(func(context.Context) error { m.ctrl.ToggleChatOpen(); return nil }), true
	case "ctrl+y":
		if err := clipboard.WriteAll(plainTranscript(m.view.Messages)); err != nil {
			m.err = "copy failed: " + err.Error()
		} else {
			m.status = "transcript copied"
		}
		return nil, true
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			if m.view.Phase == session.PhaseIdle {
				return m.act(func(ctx context.Context) error { return m.ctrl.StartCall(ctx) }), true
			}
			return nil, true
		}
		m.input.Reset()
		if m.view.Phase == session.PhaseActive {
			return m.act(func(ctx context.Context) error { return m.ctrl.SendChat(ctx, text) }), true
		}
		return m.act(func(context.Context) error { return m.ctrl.TypePreConnectText(text) }), true
	}
	return nil, false
}

func (m *Model) act(fn func(ctx context.Context) error) tea.Cmd {
	m.status = ""
	return func() tea.Msg {
		return actionErrMsg{err: fn(context.Background())}
	}
}

func (m Model) View() string {
	var b strings.Builder

	title := m.view.AgentName
	if title == "" {
		title = "agent call"
	}
	b.WriteString(headerStyle.Render(title) + "  " + m.phaseLine() + "\n")
	b.WriteString(m.controlsLine() + "\n")

	if m.view.Phase == session.PhaseIdle {
		start := m.view.StartButtonText
		if start == "" {
			start = session.DefaultStartButtonText
		}
		b.WriteString(helpStyle.Render("[enter] "+start) + "\n")
	}
	for _, e := range m.view.PreConnect {
		b.WriteString(pendingStyle.Render("queued: "+e.Text) + "\n")
	}
	if m.view.ChatOpen {
		b.WriteString(m.viewport.View() + "\n")
	}
	if m.view.LastError != "" {
		b.WriteString(errorStyle.Render(m.view.LastError) + "\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err) + "\n")
	}
	if m.status != "" {
		b.WriteString(helpStyle.Render(m.status) + "\n")
	}
	if m.view.Debug != nil {
		b.WriteString(helpStyle.Render(fmt.Sprintf("attempt=%s version=%d watchdog=%t",
			m.view.AttemptID, m.view.Debug.TranscriptVersion, m.view.Debug.WatchdogArmed)) + "\n")
	}
	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("ctrl+s start · ctrl+l leave · ctrl+t chat · ctrl+y copy · ctrl+c quit"))
	return b.String()
}

func (m Model) phaseLine() string {
	p := phaseStyle.Render(m.view.Phase.String())
	if m.view.Phase == session.PhaseConnecting {
		p += " " + m.spinner.View()
	}
	return p
}

func (m Model) controlsLine() string {
	c := m.view.Controls
	parts := []string{
		control("leave", c.Leave),
		control("mic", c.Microphone),
		control("chat", c.Chat),
		control("camera", c.Camera),
		control("share", c.ScreenShare),
	}
	return strings.Join(parts, " ")
}

func control(name string, enabled bool) string {
	if enabled {
		return enabledStyle.Render("[" + name + "]")
	}
	return disabledStyle.Render("[" + name + "]")
}

func (m Model) transcript() string {
	if len(m.view.Messages) == 0 {
		return helpStyle.Render("no messages yet")
	}
	lines := make([]string, 0, len(m.view.Messages))
	for _, msg := range m.view.Messages {
		lines = append(lines, m.renderMessage(msg))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderMessage(msg transcript.Message) string {
	label := remoteStyle.Render(msg.Originator.Label() + ":")
	if msg.Originator.IsLocal {
		label = localStyle.Render(msg.Originator.Label() + ":")
	}
	if !msg.IsFinal() {
		return label + " " + pendingStyle.Render(msg.Text+"…")
	}
	text := msg.Text
	if !msg.Originator.IsLocal && m.markdown != nil {
		if out, err := m.markdown.Render(msg.Text); err == nil {
			text = strings.TrimSpace(out)
		}
	}
	return label + " " + text
}

func plainTranscript(msgs []transcript.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(msg.Originator.Label())
		b.WriteString(": ")
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	return b.String()
}
