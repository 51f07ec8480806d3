package transport

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/transcript"
)

// Agent is the remote end of a session: it receives requests and publishes
// transport events.
type Agent struct {
	sessionID  string
	pub        message.Publisher
	subscriber message.Subscriber

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	attempt string
}

func NewAgent(sessionID string, pub message.Publisher, sub message.Subscriber) *Agent {
	return &Agent{sessionID: sessionID, pub: pub, subscriber: sub}
}

// Serve subscribes to the requests topic and calls handle for each request.
// The attempt id of the latest connect request becomes the default for
// published events.
func (a *Agent) Serve(ctx context.Context, handle func(context.Context, Envelope)) error {
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := a.subscriber.Subscribe(runCtx, RequestsTopic(a.sessionID))
	if err != nil {
		cancel()
		return errors.Wrap(err, "subscribe requests")
	}
	done := make(chan struct{})
	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for msg := range ch {
			env, err := Decode(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("component", "agent").Str("session_id", a.sessionID).Msg("failed to decode request")
				continue
			}
			if !env.Type.IsRequest() {
				continue
			}
			if env.Type == TypeConnect {
				a.mu.Lock()
				a.attempt = env.AttemptID
				a.mu.Unlock()
			}
			if handle != nil {
				handle(runCtx, env)
			}
		}
	}()
	return nil
}

func (a *Agent) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Attempt returns the attempt id of the most recent connect request.
func (a *Agent) Attempt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempt
}

func (a *Agent) Connected() error {
	return a.publish(Envelope{Type: TypeConnected})
}

func (a *Agent) Disconnected(reason string) error {
	return a.publish(Envelope{Type: TypeDisconnected, Reason: reason})
}

func (a *Agent) Chat(ev transcript.Event) error {
	return a.publish(Envelope{Type: TypeChat, Event: &ev})
}

func (a *Agent) publish(e Envelope) error {
	e.SessionID = a.sessionID
	e.AttemptID = a.Attempt()
	return Publish(a.pub, EventsTopic(a.sessionID), e)
}
