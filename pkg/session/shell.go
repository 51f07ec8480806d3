package session

import (
	"context"
	"time"
)

// Shell renders view states. Implementations must not call back into the
// controller synchronously from Render or ScrollToBottom.
type Shell interface {
	Render(v ViewState)
	ScrollToBottom()
}

// Transport is the media/session transport the controller drives. Results of
// Connect arrive asynchronously through Controller.Connected and
// Controller.Disconnected; a returned error means the request itself failed.
//
//go:generate go run go.uber.org/mock/mockgen -destination=mocks/transport.go -package=mocks github.com/go-go-golems/agentcall/pkg/session Transport
type Transport interface {
	Connect(ctx context.Context, attemptID string) error
	Leave(ctx context.Context, attemptID string) error
	SendChat(ctx context.Context, attemptID string, text string) error
}

// Attempt is the durable summary of one call attempt.
type Attempt struct {
	SessionID    string
	AttemptID    string
	Phase        Phase
	StartedAt    time.Time
	ConnectedAt  time.Time
	EndedAt      time.Time
	MessageCount int
	LastError    string
}

// Recorder persists attempt summaries whenever the phase changes.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

type ShellFuncs struct {
	RenderFunc func(ViewState)
	ScrollFunc func()
}

func (s ShellFuncs) Render(v ViewState) {
	if s.RenderFunc != nil {
		s.RenderFunc(v)
	}
}

func (s ShellFuncs) ScrollToBottom() {
	if s.ScrollFunc != nil {
		s.ScrollFunc()
	}
}

// MultiShell fans every call out to all shells in order.
type MultiShell []Shell

func (m MultiShell) Render(v ViewState) {
	for _, s := range m {
		s.Render(v)
	}
}

func (m MultiShell) ScrollToBottom() {
	for _, s := range m {
		s.ScrollToBottom()
	}
}

type nopTransport struct{}

func (nopTransport) Connect(context.Context, string) error          { return nil }
func (nopTransport) Leave(context.Context, string) error            { return nil }
func (nopTransport) SendChat(context.Context, string, string) error { return nil }
