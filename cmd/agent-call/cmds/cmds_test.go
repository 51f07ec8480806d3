package cmds

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/agentcall/pkg/config"
	"github.com/go-go-golems/agentcall/pkg/session"
	"github.com/go-go-golems/agentcall/pkg/sessionstore"
	"github.com/go-go-golems/agentcall/pkg/transcript"
)

func TestPrintShell_PrintsPhasesAndFinalMessagesOnce(t *testing.T) {
	var buf bytes.Buffer
	p := newPrintShell(&buf)
	local := transcript.Participant{Identity: "me", IsLocal: true}
	agent := transcript.Participant{Identity: "bot", DisplayName: "Bot"}

	p.Render(session.ViewState{Phase: session.PhaseConnecting})
	p.Render(session.ViewState{Phase: session.PhaseActive, Messages: []transcript.Message{
		{ID: "1", Originator: local, Text: "hi", State: transcript.StateFinal},
		{ID: "2", Originator: agent, Text: "hel", State: transcript.StatePending},
	}})
	p.Render(session.ViewState{Phase: session.PhaseActive, Messages: []transcript.Message{
		{ID: "1", Originator: local, Text: "hi", State: transcript.StateFinal},
		{ID: "2", Originator: agent, Text: "hello", State: transcript.StateFinal},
	}})

	require.Equal(t, "-- connecting\n-- active\nme: hi\nBot: hello\n", buf.String())
	select {
	case <-p.Changed():
	default:
		t.Fatal("expected a change signal")
	}
}

func TestAttemptRow(t *testing.T) {
	row := attemptRow(sessionstore.AttemptRecord{
		AttemptID:     "a1",
		SessionID:     "s1",
		Phase:         "ended",
		StartedAtMs:   1_700_000_000_000,
		ConnectedAtMs: 1_700_000_000_250,
		MessageCount:  3,
	})
	v, ok := row.Get("attempt_id")
	require.True(t, ok)
	require.Equal(t, "a1", v)
	v, _ = row.Get("connect_ms")
	require.Equal(t, int64(250), v)
	v, _ = row.Get("messages")
	require.Equal(t, 3, v)

	row = attemptRow(sessionstore.AttemptRecord{AttemptID: "a2", StartedAtMs: 1_700_000_000_000})
	v, ok = row.Get("connect_ms")
	require.True(t, ok)
	require.Nil(t, v)
}

func TestNewRootCommand_WiresSubcommandsAndLoggingFlags(t *testing.T) {
	root, err := NewRootCommand()
	require.NoError(t, err)

	for _, name := range []string{"serve", "tui", "simulate", "agent", "history"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Name())
	}
	history, _, err := root.Find([]string{"history"})
	require.NoError(t, err)
	require.NotNil(t, history.Flags().Lookup("limit"))

	for _, name := range []string{"log-level", "with-caller", "config", "session-id"} {
		require.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestRunSimulation_EchoAgent(t *testing.T) {
	cfg := config.Default()
	a := &app{cfg: &cfg, flags: rootFlags{sessionID: "sim-test"}}
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := runSimulation(ctx, a, simulateFlags{
		pre:       []string{"are you there"},
		say:       []string{"hello"},
		replyWait: 5 * time.Second,
	}, strings.NewReader(""), &out)
	require.NoError(t, err)

	s := out.String()
	require.Contains(t, s, "-- active")
	require.Contains(t, s, "Echo: You said: hello")
	pre := strings.Index(s, "You: are you there")
	greet := strings.Index(s, "Echo: Hi, I'm listening.")
	require.GreaterOrEqual(t, pre, 0)
	require.Greater(t, greet, pre)
}
