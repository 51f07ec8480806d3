package transcript

import (
	"strings"
	"time"
)

// Participant is the cached identity of a call participant. The transport owns
// the participant; the transcript only keeps a copy of its display fields.
type Participant struct {
	Identity    string `json:"identity"`
	IsLocal     bool   `json:"isLocal"`
	DisplayName string `json:"displayName,omitempty"`
}

// IsZero reports whether no identity information was provided.
func (p Participant) IsZero() bool {
	return strings.TrimSpace(p.Identity) == "" && strings.TrimSpace(p.DisplayName) == "" && !p.IsLocal
}

// Label returns the name to show next to a message.
func (p Participant) Label() string {
	if s := strings.TrimSpace(p.DisplayName); s != "" {
		return s
	}
	if s := strings.TrimSpace(p.Identity); s != "" {
		return s
	}
	if p.IsLocal {
		return "you"
	}
	return "agent"
}

type MessageState string

const (
	StatePending MessageState = "pending"
	StateFinal   MessageState = "final"
)

// Message is one transcript entry.
type Message struct {
	ID         string       `json:"id"`
	Originator Participant  `json:"originator"`
	Text       string       `json:"text"`
	Timestamp  uint64       `json:"timestamp"`
	State      MessageState `json:"state"`
	ReceivedAt time.Time    `json:"receivedAt"`
}

func (m Message) IsFinal() bool {
	return m.State == StateFinal
}

// EventKind classifies an incoming transcript event.
type EventKind string

const (
	// KindPartial creates a new pending message.
	KindPartial EventKind = "partial"
	// KindUpdate replaces the text of a pending message.
	KindUpdate EventKind = "update"
	// KindFinalize replaces the text of a pending message and makes it final.
	KindFinalize EventKind = "finalize"
	// KindFinal creates a new final message.
	KindFinal EventKind = "final"
)

func (k EventKind) Valid() bool {
	switch k {
	case KindPartial, KindUpdate, KindFinalize, KindFinal:
		return true
	}
	return false
}

// Event is a chat/transcript event as delivered by the transport.
type Event struct {
	Kind        EventKind   `json:"kind"`
	ID          string      `json:"id,omitempty"`
	Participant Participant `json:"participant"`
	Text        string      `json:"text"`
}
