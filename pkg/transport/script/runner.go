// Package script runs a scripted agent written in JavaScript against the
// request/event bus. It is used by the simulate command and by tests that
// need a remote end with realistic timing.
//
// Scripts register handlers and drive the call through host functions:
//
//	onConnect(fn)            fn(attemptId)
//	onChat(fn)               fn(text, attemptId)
//	onLeave(fn)              fn(attemptId)
//	connect()                report the call as established
//	disconnect(reason)       drop the call
//	partial(id, text)        start a streaming agent message
//	update(id, text)         replace the text of a streaming message
//	finalize(id, text)       finish a streaming message
//	say(text)                send a complete agent message
//	sleep(ms)                pause the handler
//	setAgent(identity, name) set the agent participant
package script

import (
	"context"
	_ "embed"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/transcript"
	"github.com/go-go-golems/agentcall/pkg/transport"
)

//go:embed default.js
var DefaultScenario string

// Emitter publishes agent-side events. *transport.Agent implements it.
type Emitter interface {
	Connected() error
	Disconnected(reason string) error
	Chat(ev transcript.Event) error
}

type Runner struct {
	mu sync.Mutex

	vm       *goja.Runtime
	emitter  Emitter
	agent    transcript.Participant
	handlers map[string]goja.Callable
	ctx      context.Context
}

func NewRunner(emitter Emitter) *Runner {
	r := &Runner{
		vm:       goja.New(),
		emitter:  emitter,
		agent:    transcript.Participant{Identity: "agent", DisplayName: "Agent"},
		handlers: map[string]goja.Callable{},
		ctx:      context.Background(),
	}
	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{}))
	registry.Enable(r.vm)
	console.Enable(r.vm)
	r.installHostAPIs()
	return r
}

func (r *Runner) installHostAPIs() {
	for _, name := range []string{"onConnect", "onChat", "onLeave"} {
		event := name
		r.mustSet(event, func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(r.vm.NewTypeError(event + "(fn): argument must be a function"))
			}
			r.handlers[event] = fn
			return goja.Undefined()
		})
	}

	r.mustSet("connect", func(goja.FunctionCall) goja.Value {
		r.check(r.emitter.Connected())
		return goja.Undefined()
	})
	r.mustSet("disconnect", func(call goja.FunctionCall) goja.Value {
		r.check(r.emitter.Disconnected(optString(call.Argument(0))))
		return goja.Undefined()
	})
	r.mustSet("partial", r.streaming(transcript.KindPartial))
	r.mustSet("update", r.streaming(transcript.KindUpdate))
	r.mustSet("finalize", r.streaming(transcript.KindFinalize))
	r.mustSet("say", func(call goja.FunctionCall) goja.Value {
		id := uuid.NewString()
		r.check(r.emitter.Chat(transcript.Event{
			Kind:        transcript.KindFinal,
			ID:          id,
			Participant: r.agent,
			Text:        call.Argument(0).String(),
		}))
		return r.vm.ToValue(id)
	})
	r.mustSet("sleep", func(call goja.FunctionCall) goja.Value {
		ms := call.Argument(0).ToInteger()
		if ms <= 0 {
			return goja.Undefined()
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-r.ctx.Done():
			panic(r.vm.NewGoError(r.ctx.Err()))
		}
		return goja.Undefined()
	})
	r.mustSet("setAgent", func(call goja.FunctionCall) goja.Value {
		identity := strings.TrimSpace(call.Argument(0).String())
		if identity == "" {
			panic(r.vm.NewTypeError("setAgent(identity, name): identity must be non-empty"))
		}
		r.agent = transcript.Participant{Identity: identity, DisplayName: optString(call.Argument(1))}
		return goja.Undefined()
	})
}

func (r *Runner) streaming(kind transcript.EventKind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		id := strings.TrimSpace(call.Argument(0).String())
		if id == "" {
			panic(r.vm.NewTypeError(string(kind) + "(id, text): id must be non-empty"))
		}
		r.check(r.emitter.Chat(transcript.Event{
			Kind:        kind,
			ID:          id,
			Participant: r.agent,
			Text:        optString(call.Argument(1)),
		}))
		return goja.Undefined()
	}
}

func (r *Runner) mustSet(name string, fn func(goja.FunctionCall) goja.Value) {
	if err := r.vm.Set(name, fn); err != nil {
		panic(err)
	}
}

func (r *Runner) check(err error) {
	if err != nil {
		panic(r.vm.NewGoError(err))
	}
}

func (r *Runner) LoadScriptFile(path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read scenario %q", path)
	}
	return r.LoadScriptSource(path, string(blob))
}

func (r *Runner) LoadScriptSource(name string, source string) error {
	if strings.TrimSpace(name) == "" {
		name = "scenario.js"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.vm.RunScript(name, source); err != nil {
		return errors.Wrapf(err, "run scenario %q", name)
	}
	return nil
}

// Handle dispatches a request to the registered handler. It is shaped to be
// passed to transport.Agent.Serve.
func (r *Runner) Handle(ctx context.Context, env transport.Envelope) {
	var (
		event string
		args  []any
	)
	switch env.Type {
	case transport.TypeConnect:
		event, args = "onConnect", []any{env.AttemptID}
	case transport.TypeSendChat:
		event, args = "onChat", []any{env.Text, env.AttemptID}
	case transport.TypeLeave:
		event, args = "onLeave", []any{env.AttemptID}
	default:
		return
	}
	if err := r.Call(ctx, event, args...); err != nil {
		log.Warn().Err(err).Str("component", "script").Str("handler", event).Msg("scenario handler failed")
	}
}

// Call invokes the handler registered for event, if any.
func (r *Runner) Call(ctx context.Context, event string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.handlers[event]
	if !ok {
		return nil
	}
	r.ctx = ctx
	defer func() { r.ctx = context.Background() }()

	vals := make([]goja.Value, 0, len(args))
	for _, a := range args {
		vals = append(vals, r.vm.ToValue(a))
	}
	if _, err := fn(goja.Undefined(), vals...); err != nil {
		return errors.Wrapf(err, "scenario %s", event)
	}
	return nil
}

func optString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

type printer struct{}

func (printer) Log(s string)   { log.Info().Str("component", "script").Msg(s) }
func (printer) Info(s string)  { log.Info().Str("component", "script").Msg(s) }
func (printer) Debug(s string) { log.Debug().Str("component", "script").Msg(s) }
func (printer) Warn(s string)  { log.Warn().Str("component", "script").Msg(s) }
func (printer) Error(s string) { log.Error().Str("component", "script").Msg(s) }
