// Package watchdog supervises the connection-establishment phase of a call
// with a single-shot, cancellable timer.
package watchdog

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout covers slow network and media negotiation.
const DefaultTimeout = 200 * time.Second

// Handle identifies one armed timer. The zero Handle is never armed.
type Handle uint64

// Watchdog holds at most one live timer. Arming again disarms the previous one.
type Watchdog struct {
	clock Clock

	mu        sync.Mutex
	onTimeout func(Handle)
	next      Handle
	current   Handle
	timer     Timer
	deadline  time.Time
}

func New(clock Clock) *Watchdog {
	if clock == nil {
		clock = RealClock()
	}
	return &Watchdog{clock: clock}
}

// SetTimeoutHandler installs the callback invoked when an armed handle fires.
func (w *Watchdog) SetTimeoutHandler(fn func(Handle)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTimeout = fn
}

// Arm starts a timer for d (DefaultTimeout when d <= 0).
func (w *Watchdog) Arm(d time.Duration) Handle {
	if d <= 0 {
		d = DefaultTimeout
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != 0 {
		log.Debug().Str("component", "watchdog").Uint64("handle", uint64(w.current)).Msg("re-arm disarms previous timer")
		w.stopLocked()
	}
	w.next++
	h := w.next
	w.current = h
	w.deadline = w.clock.Now().Add(d)
	w.timer = w.clock.AfterFunc(d, func() { w.fire(h) })
	return h
}

// Disarm cancels h. It reports whether h was live; disarming a fired,
// disarmed or unknown handle is a no-op.
func (w *Watchdog) Disarm(h Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h == 0 || h != w.current {
		return false
	}
	w.stopLocked()
	return true
}

// Armed returns the live handle, if any.
func (w *Watchdog) Armed() (Handle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.current != 0
}

// Deadline returns when the live timer fires.
func (w *Watchdog) Deadline() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == 0 {
		return time.Time{}, false
	}
	return w.deadline, true
}

func (w *Watchdog) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = nil
	w.current = 0
	w.deadline = time.Time{}
}

func (w *Watchdog) fire(h Handle) {
	w.mu.Lock()
	if w.current != h {
		// disarmed or re-armed while the timer was already running
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.current = 0
	w.deadline = time.Time{}
	cb := w.onTimeout
	w.mu.Unlock()

	log.Info().Str("component", "watchdog").Uint64("handle", uint64(h)).Msg("connection watchdog fired")
	if cb != nil {
		cb(h)
	}
}
