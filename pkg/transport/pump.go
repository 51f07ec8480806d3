package transport

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/transcript"
)

// Sink receives transport events. *session.Controller implements it.
type Sink interface {
	Connected(attemptID string) error
	Disconnected(attemptID string, reason string) error
	HandleChatEvent(attemptID string, ev transcript.Event) error
}

// Pump consumes the events topic of one session and dispatches each event to
// the sink in order.
type Pump struct {
	sessionID  string
	subscriber message.Subscriber
	sink       Sink

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}
}

func NewPump(sessionID string, subscriber message.Subscriber, sink Sink) *Pump {
	return &Pump{
		sessionID:  sessionID,
		subscriber: subscriber,
		sink:       sink,
	}
}

// Start subscribes before returning, so events published after Start are
// not lost on the memory bus.
func (p *Pump) Start(ctx context.Context) error {
	if p == nil || p.subscriber == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := p.subscriber.Subscribe(runCtx, EventsTopic(p.sessionID))
	if err != nil {
		cancel()
		return errors.Wrap(err, "subscribe events")
	}
	p.cancel = cancel
	p.running = true
	p.done = make(chan struct{})
	go p.consume(ch, p.done)
	log.Info().Str("component", "transport").Str("session_id", p.sessionID).Msg("event pump: started")
	return nil
}

// Stop cancels the subscription and waits for the consume loop to drain.
func (p *Pump) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (p *Pump) IsRunning() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pump) consume(ch <-chan *message.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		p.dispatch(msg)
		msg.Ack()
	}
	log.Info().Str("component", "transport").Str("session_id", p.sessionID).Msg("event pump: stopped")
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pump) dispatch(msg *message.Message) {
	env, err := Decode(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("component", "transport").Str("session_id", p.sessionID).Msg("event pump: failed to decode envelope")
		return
	}
	if env.SessionID != p.sessionID || !env.Type.IsEvent() {
		return
	}
	switch env.Type {
	case TypeConnected:
		err = p.sink.Connected(env.AttemptID)
	case TypeDisconnected:
		err = p.sink.Disconnected(env.AttemptID, env.Reason)
	case TypeChat:
		err = p.sink.HandleChatEvent(env.AttemptID, *env.Event)
	}
	if err != nil {
		// late events for an ended attempt land here
		log.Debug().Err(err).Str("component", "transport").Str("session_id", p.sessionID).
			Str("type", string(env.Type)).Str("attempt_id", env.AttemptID).Msg("event pump: sink rejected event")
	}
}
