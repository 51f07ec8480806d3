package session

import (
	"time"

	"github.com/go-go-golems/agentcall/pkg/preconnect"
	"github.com/go-go-golems/agentcall/pkg/transcript"
)

// ViewState is everything a shell needs to render the session.
type ViewState struct {
	SessionID       string               `json:"sessionId"`
	AttemptID       string               `json:"attemptId,omitempty"`
	Phase           Phase                `json:"phase"`
	Controls        Controls             `json:"controls"`
	ChatOpen        bool                 `json:"chatOpen"`
	Messages        []transcript.Message `json:"messages"`
	PreConnect      []preconnect.Entry   `json:"preConnect,omitempty"`
	AgentName       string               `json:"agentName,omitempty"`
	StartButtonText string               `json:"startButtonText,omitempty"`
	ConnectDeadline *time.Time           `json:"connectDeadline,omitempty"`
	LastError       string               `json:"lastError,omitempty"`
	Debug           *DebugInfo           `json:"debug,omitempty"`
}

type DebugInfo struct {
	TranscriptVersion uint64 `json:"transcriptVersion"`
	WatchdogArmed     bool   `json:"watchdogArmed"`
	PreConnectFlushed bool   `json:"preConnectFlushed"`
}

// Model is the controller state Derive projects from.
type Model struct {
	SessionID       string
	AttemptID       string
	Phase           Phase
	Capabilities    Capabilities
	ChatOpen        bool
	Messages        []transcript.Message
	PreConnect      []preconnect.Entry
	AgentName       string
	StartButtonText string
	ConnectDeadline time.Time
	LastError       string

	Debug             bool
	TranscriptVersion uint64
	WatchdogArmed     bool
	PreConnectFlushed bool
}

// Derive is a pure projection of m. The welcome view (idle) never shows an
// open chat pane and the transcript is only exposed once an attempt started.
func Derive(m Model) ViewState {
	v := ViewState{
		SessionID:       m.SessionID,
		AttemptID:       m.AttemptID,
		Phase:           m.Phase,
		Controls:        DeriveControls(m.Capabilities, m.Phase),
		ChatOpen:        m.ChatOpen && m.Phase != PhaseIdle,
		Messages:        append([]transcript.Message{}, m.Messages...),
		AgentName:       m.AgentName,
		StartButtonText: m.StartButtonText,
		LastError:       m.LastError,
	}
	if m.Phase == PhaseIdle || m.Phase == PhaseConnecting {
		v.PreConnect = append([]preconnect.Entry(nil), m.PreConnect...)
	}
	if m.Phase == PhaseConnecting && !m.ConnectDeadline.IsZero() {
		d := m.ConnectDeadline
		v.ConnectDeadline = &d
	}
	if m.Debug {
		v.Debug = &DebugInfo{
			TranscriptVersion: m.TranscriptVersion,
			WatchdogArmed:     m.WatchdogArmed,
			PreConnectFlushed: m.PreConnectFlushed,
		}
	}
	return v
}
