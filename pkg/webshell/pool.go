package webshell

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/watchdog"
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// viewers is the set of browser connections watching one call session.
//
// The idle callback is armed when the last viewer leaves, whether it
// disconnected or was dropped after a failed write, and disarmed when a viewer
// joins. Frames sent while nobody is watching never touch it.
type viewers struct {
	logger zerolog.Logger
	clock  watchdog.Clock
	idle   time.Duration
	onIdle func()

	mu    sync.Mutex
	conns map[wsConn]struct{}
	timer watchdog.Timer
	// gen invalidates an idle callback that fired after a viewer rejoined.
	gen uint64
}

func newViewers(sessionID string, clock watchdog.Clock, idle time.Duration, onIdle func()) *viewers {
	if clock == nil {
		clock = watchdog.RealClock()
	}
	return &viewers{
		logger: log.With().Str("component", "webshell").Str("session_id", sessionID).Logger(),
		clock:  clock,
		idle:   idle,
		onIdle: onIdle,
		conns:  map[wsConn]struct{}{},
	}
}

func (v *viewers) join(conn wsConn) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conns[conn] = struct{}{}
	v.disarmLocked()
	v.logger.Debug().Int("viewers", len(v.conns)).Msg("viewer joined")
}

func (v *viewers) leave(conn wsConn) {
	v.mu.Lock()
	v.dropLocked(conn)
	v.mu.Unlock()
	_ = conn.Close()
}

// broadcast writes data to every viewer. Viewers whose write fails are dropped.
func (v *viewers) broadcast(data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for conn := range v.conns {
		v.writeLocked(conn, data)
	}
}

// send writes data to conn if it is still a viewer.
func (v *viewers) send(conn wsConn, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.conns[conn]; ok {
		v.writeLocked(conn, data)
	}
}

func (v *viewers) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.conns)
}

// closeAll disconnects every viewer without arming the idle callback.
func (v *viewers) closeAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for conn := range v.conns {
		_ = conn.Close()
	}
	clear(v.conns)
	v.disarmLocked()
}

func (v *viewers) writeLocked(conn wsConn, data []byte) {
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		v.logger.Warn().Err(err).Msg("ws write failed, dropping viewer")
		v.dropLocked(conn)
		_ = conn.Close()
	}
}

func (v *viewers) dropLocked(conn wsConn) {
	if _, ok := v.conns[conn]; !ok {
		return
	}
	delete(v.conns, conn)
	v.logger.Debug().Int("viewers", len(v.conns)).Msg("viewer left")
	if len(v.conns) == 0 {
		v.armLocked()
	}
}

func (v *viewers) armLocked() {
	v.disarmLocked()
	if v.idle <= 0 || v.onIdle == nil {
		return
	}
	gen := v.gen
	v.timer = v.clock.AfterFunc(v.idle, func() { v.fireIdle(gen) })
}

func (v *viewers) disarmLocked() {
	v.gen++
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

func (v *viewers) fireIdle(gen uint64) {
	v.mu.Lock()
	if gen != v.gen || len(v.conns) != 0 {
		v.mu.Unlock()
		return
	}
	v.timer = nil
	v.mu.Unlock()
	v.logger.Info().Dur("idle", v.idle).Msg("no viewers left")
	v.onIdle()
}
