// Package transport carries session requests and transport events over a
// watermill bus. The in-memory gochannel pubsub is used for single-process
// runs and Redis Streams when several processes share one session.
package transport

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/agentcall/pkg/transcript"
)

type EnvelopeType string

const (
	// requests, published by the client side
	TypeConnect  EnvelopeType = "connect"
	TypeLeave    EnvelopeType = "leave"
	TypeSendChat EnvelopeType = "chat.send"

	// events, published by the agent side
	TypeConnected    EnvelopeType = "connected"
	TypeDisconnected EnvelopeType = "disconnected"
	TypeChat         EnvelopeType = "chat"
)

func (t EnvelopeType) IsRequest() bool {
	return t == TypeConnect || t == TypeLeave || t == TypeSendChat
}

func (t EnvelopeType) IsEvent() bool {
	return t == TypeConnected || t == TypeDisconnected || t == TypeChat
}

// Envelope is the JSON payload of every bus message.
type Envelope struct {
	Type      EnvelopeType      `json:"type"`
	SessionID string            `json:"sessionId"`
	AttemptID string            `json:"attemptId,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Text      string            `json:"text,omitempty"`
	Event     *transcript.Event `json:"event,omitempty"`
	SentAt    time.Time         `json:"sentAt"`
}

func (e Envelope) Validate() error {
	if e.SessionID == "" {
		return errors.New("envelope without session id")
	}
	switch e.Type {
	case TypeConnect, TypeLeave, TypeConnected, TypeDisconnected:
		return nil
	case TypeSendChat:
		if e.Text == "" {
			return errors.New("chat.send envelope without text")
		}
		return nil
	case TypeChat:
		if e.Event == nil {
			return errors.New("chat envelope without event")
		}
		return nil
	}
	return errors.Errorf("unknown envelope type %q", e.Type)
}

func Encode(e Envelope) ([]byte, error) {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return b, nil
}

func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, errors.Wrap(err, "unmarshal envelope")
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// RequestsTopic carries Connect/Leave/SendChat for a session.
func RequestsTopic(sessionID string) string { return "agentcall." + sessionID + ".requests" }

// EventsTopic carries Connected/Disconnected/chat events for a session.
func EventsTopic(sessionID string) string { return "agentcall." + sessionID + ".events" }
