package script

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/agentcall/pkg/transcript"
	"github.com/go-go-golems/agentcall/pkg/transport"
)

type fakeEmitter struct {
	mu        sync.Mutex
	log       []string
	events    []transcript.Event
	failChats bool
}

func (f *fakeEmitter) Connected() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "connected")
	return nil
}

func (f *fakeEmitter) Disconnected(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "disconnected:"+reason)
	return nil
}

func (f *fakeEmitter) Chat(ev transcript.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failChats {
		return errors.New("bus closed")
	}
	f.log = append(f.log, string(ev.Kind)+":"+ev.Text)
	f.events = append(f.events, ev)
	return nil
}

func TestRunner_ConnectAndStream(t *testing.T) {
	em := &fakeEmitter{}
	r := NewRunner(em)
	require.NoError(t, r.LoadScriptSource("t.js", `
		setAgent("bot", "Bot");
		onConnect(function (attemptId) {
			connect();
			partial("m1", "Hel");
			update("m1", "Hello");
			finalize("m1", "Hello!");
		});
		onChat(function (text) { say("got " + text); });
		onLeave(function () { disconnect("bye"); });
	`))

	r.Handle(context.Background(), transport.Envelope{Type: transport.TypeConnect, AttemptID: "a1"})
	r.Handle(context.Background(), transport.Envelope{Type: transport.TypeSendChat, Text: "ping"})
	r.Handle(context.Background(), transport.Envelope{Type: transport.TypeLeave})

	require.Equal(t, []string{
		"connected",
		"partial:Hel",
		"update:Hello",
		"finalize:Hello!",
		"final:got ping",
		"disconnected:bye",
	}, em.log)
	require.Equal(t, "bot", em.events[0].Participant.Identity)
	require.Equal(t, "m1", em.events[2].ID)
}

func TestRunner_MissingHandlerIsNoop(t *testing.T) {
	r := NewRunner(&fakeEmitter{})
	require.NoError(t, r.Call(context.Background(), "onChat", "x"))
}

func TestRunner_ScriptErrors(t *testing.T) {
	r := NewRunner(&fakeEmitter{})
	require.Error(t, r.LoadScriptSource("bad.js", `onConnect(`))
	require.Error(t, r.LoadScriptSource("bad2.js", `onConnect(42)`))

	em := &fakeEmitter{failChats: true}
	r = NewRunner(em)
	require.NoError(t, r.LoadScriptSource("t.js", `onConnect(function () { say("hi"); });`))
	require.Error(t, r.Call(context.Background(), "onConnect", "a1"))
}

func TestRunner_SleepHonoursContext(t *testing.T) {
	r := NewRunner(&fakeEmitter{})
	require.NoError(t, r.LoadScriptSource("t.js", `onConnect(function () { sleep(60000); });`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, r.Call(ctx, "onConnect", "a1"))
}

func TestDefaultScenarioLoads(t *testing.T) {
	r := NewRunner(&fakeEmitter{})
	require.NoError(t, r.LoadScriptSource("default.js", DefaultScenario))
}
