// Package webshell exposes a session to browsers over a websocket. Every
// render is broadcast as a "view" frame, scroll instructions as "scroll"
// frames, and user actions come back as "action" frames.
package webshell

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/session"
	"github.com/go-go-golems/agentcall/pkg/watchdog"
)

// Controller is the part of *session.Controller the browser can drive.
type Controller interface {
	StartCall(ctx context.Context) error
	LeaveCall(ctx context.Context) error
	Reset() error
	ToggleChatOpen() bool
	TypePreConnectText(text string) error
	SendChat(ctx context.Context, text string) error
	Snapshot() session.ViewState
}

const (
	FrameView   = "view"
	FrameScroll = "scroll"
	FrameError  = "error"
	FramePong   = "pong"
)

type Frame struct {
	Type  string             `json:"type"`
	View  *session.ViewState `json:"view,omitempty"`
	Error string             `json:"error,omitempty"`
}

const (
	ActionStart      = "start"
	ActionLeave      = "leave"
	ActionReset      = "reset"
	ActionToggleChat = "toggleChat"
	ActionType       = "type"
	ActionSend       = "send"
	ActionPing       = "ping"
)

type Action struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

// Shell implements session.Shell for websocket clients. The controller is
// attached after construction because the controller itself needs the shell.
type Shell struct {
	sessionID string
	pool      *viewers
	upgrader  websocket.Upgrader

	clock  watchdog.Clock
	idle   time.Duration
	onIdle func()

	mu   sync.Mutex
	ctrl Controller
}

var _ session.Shell = &Shell{}

type Option func(*Shell)

// WithIdleTimeout calls onIdle once no browser has been connected for d.
func WithIdleTimeout(d time.Duration, onIdle func()) Option {
	return func(s *Shell) {
		s.idle = d
		s.onIdle = onIdle
	}
}

// WithClock sets the clock driving the idle timeout.
func WithClock(c watchdog.Clock) Option {
	return func(s *Shell) { s.clock = c }
}

func WithUpgrader(u websocket.Upgrader) Option {
	return func(s *Shell) { s.upgrader = u }
}

func New(sessionID string, opts ...Option) *Shell {
	s := &Shell{
		sessionID: sessionID,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(s)
	}
	s.pool = newViewers(sessionID, s.clock, s.idle, s.onIdle)
	return s
}

func (s *Shell) Attach(c Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl = c
}

func (s *Shell) controller() Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

func (s *Shell) Render(v session.ViewState) {
	b, err := json.Marshal(Frame{Type: FrameView, View: &v})
	if err != nil {
		log.Error().Err(err).Str("component", "webshell").Msg("failed to marshal view")
		return
	}
	s.pool.broadcast(b)
}

func (s *Shell) ScrollToBottom() {
	b, _ := json.Marshal(Frame{Type: FrameScroll})
	s.pool.broadcast(b)
}

func (s *Shell) Connections() int { return s.pool.count() }

func (s *Shell) Close() { s.pool.closeAll() }

// ServeHTTP upgrades the request and runs the read loop of the connection.
func (s *Shell) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctrl := s.controller()
	if ctrl == nil {
		http.Error(w, "session not initialized", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	wsLog := log.With().Str("component", "webshell").Str("session_id", s.sessionID).Str("remote", req.RemoteAddr).Logger()
	wsLog.Info().Msg("ws connected")

	s.pool.join(conn)
	s.pool.send(conn, s.snapshotFrame(ctrl))

	go func() {
		defer s.pool.leave(conn)
		defer wsLog.Info().Msg("ws disconnected")
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
			if msgType != websocket.TextMessage || len(data) == 0 {
				continue
			}
			var a Action
			if err := json.Unmarshal(data, &a); err != nil {
				s.sendError(conn, errors.Wrap(err, "invalid action"))
				continue
			}
			if a.Action == ActionPing {
				b, _ := json.Marshal(Frame{Type: FramePong})
				s.pool.send(conn, b)
				continue
			}
			if err := s.dispatch(context.Background(), ctrl, a); err != nil {
				wsLog.Warn().Err(err).Str("action", a.Action).Msg("action rejected")
				s.sendError(conn, err)
			}
		}
	}()
}

func (s *Shell) dispatch(ctx context.Context, ctrl Controller, a Action) error {
	switch strings.TrimSpace(a.Action) {
	case ActionStart:
		return ctrl.StartCall(ctx)
	case ActionLeave:
		return ctrl.LeaveCall(ctx)
	case ActionReset:
		return ctrl.Reset()
	case ActionToggleChat:
		ctrl.ToggleChatOpen()
		return nil
	case ActionType:
		return ctrl.TypePreConnectText(a.Text)
	case ActionSend:
		return ctrl.SendChat(ctx, a.Text)
	}
	return errors.Errorf("unknown action %q", a.Action)
}

func (s *Shell) snapshotFrame(ctrl Controller) []byte {
	v := ctrl.Snapshot()
	b, _ := json.Marshal(Frame{Type: FrameView, View: &v})
	return b
}

func (s *Shell) sendError(conn wsConn, err error) {
	b, _ := json.Marshal(Frame{Type: FrameError, Error: err.Error()})
	s.pool.send(conn, b)
}
