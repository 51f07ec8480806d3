package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/agentcall/pkg/session"
	"github.com/go-go-golems/agentcall/pkg/transcript"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeController) record(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeController) StartCall(context.Context) error { return f.record("start") }
func (f *fakeController) LeaveCall(context.Context) error { return f.record("leave") }
func (f *fakeController) ToggleChatOpen() bool {
	_ = f.record("toggle")
	return true
}
func (f *fakeController) TypePreConnectText(text string) error { return f.record("type:" + text) }
func (f *fakeController) SendChat(_ context.Context, text string) error {
	return f.record("send:" + text)
}
func (f *fakeController) Snapshot() session.ViewState {
	return session.ViewState{Phase: session.PhaseIdle}
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func press(t *testing.T, m Model, k tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestModel_EnterRoutesByPhase(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, NewShell(4).Events())

	m = typeText(t, m, "hi")
	m, cmd := press(t, m, tea.KeyEnter)
	require.NotNil(t, cmd)
	require.Equal(t, actionErrMsg{}, cmd())
	require.Empty(t, m.input.Value())

	next, _ := m.Update(ViewMsg{View: session.ViewState{Phase: session.PhaseActive, ChatOpen: true}})
	m = next.(Model)
	m = typeText(t, m, "hello")
	_, cmd = press(t, m, tea.KeyEnter)
	cmd()

	require.Equal(t, []string{"type:hi", "send:hello"}, ctrl.calls)
}

func TestModel_EmptyEnterStartsCallWhenIdle(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(ctrl, nil)
	_, cmd := press(t, m, tea.KeyEnter)
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, []string{"start"}, ctrl.calls)
}

func TestModel_ShowsActionErrors(t *testing.T) {
	ctrl := &fakeController{err: errors.New("invalid session transition")}
	m := NewModel(ctrl, nil)
	_, cmd := press(t, m, tea.KeyCtrlL)
	msg := cmd()
	next, _ := m.Update(msg)
	require.Contains(t, next.(Model).View(), "invalid session transition")
}

func TestModel_RendersViewAndScrolls(t *testing.T) {
	m := NewModel(&fakeController{}, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 14})
	m = next.(Model)

	msgs := make([]transcript.Message, 0, 30)
	for i := 0; i < 30; i++ {
		msgs = append(msgs, transcript.Message{
			ID:         fmt.Sprintf("m%d", i),
			Originator: transcript.Participant{Identity: "me", IsLocal: true},
			Text:       fmt.Sprintf("line %d", i),
			State:      transcript.StateFinal,
		})
	}
	msgs = append(msgs, transcript.Message{
		ID:         "p",
		Originator: transcript.Participant{Identity: "agent", DisplayName: "Agent"},
		Text:       "thinking",
		State:      transcript.StatePending,
	})
	next, _ = m.Update(ViewMsg{View: session.ViewState{
		Phase:    session.PhaseActive,
		ChatOpen: true,
		Controls: session.Controls{Leave: true, Microphone: true},
		Messages: msgs,
	}})
	m = next.(Model)
	require.False(t, m.viewport.AtBottom())

	next, _ = m.Update(ScrollMsg{})
	m = next.(Model)
	require.True(t, m.viewport.AtBottom())

	out := m.View()
	require.Contains(t, out, "active")
	require.True(t, strings.Contains(out, "thinking"))
}

func TestPlainTranscript(t *testing.T) {
	out := plainTranscript([]transcript.Message{
		{Originator: transcript.Participant{IsLocal: true}, Text: "hi"},
		{Originator: transcript.Participant{Identity: "bot", DisplayName: "Bot"}, Text: "hello"},
	})
	require.Equal(t, "you: hi\nBot: hello\n", out)
}
