// Package session holds the call session controller: the phase state machine
// that ties the transcript, the connection watchdog and the pre-connect buffer
// to a transport and a rendering shell.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/preconnect"
	"github.com/go-go-golems/agentcall/pkg/transcript"
	"github.com/go-go-golems/agentcall/pkg/watchdog"
)

const (
	DefaultStartButtonText = "Start call"
	reasonTimedOut         = "connection timed out"
	recordTimeout          = 5 * time.Second
)

type Option func(*Controller)

func WithSessionID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.id = id
		}
	}
}

// WithConnectTimeout overrides watchdog.DefaultTimeout for every attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) { c.connectTimeout = d }
}

func WithLocalParticipant(p transcript.Participant) Option {
	return func(c *Controller) {
		p.IsLocal = true
		c.local = p
	}
}

func WithAgentName(name string) Option {
	return func(c *Controller) { c.agentName = name }
}

func WithStartButtonText(text string) Option {
	return func(c *Controller) {
		if text != "" {
			c.startButtonText = text
		}
	}
}

func WithDebug(debug bool) Option {
	return func(c *Controller) { c.debug = debug }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithClock is used when no watchdog is injected.
func WithClock(clock watchdog.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithWatchdog(w *watchdog.Watchdog) Option {
	return func(c *Controller) { c.wd = w }
}

func WithAggregatorFactory(fn func() *transcript.Aggregator) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newAggregator = fn
		}
	}
}

func WithReconcilerFactory(fn func(enabled bool) *preconnect.Reconciler) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newReconciler = fn
		}
	}
}

type attempt struct {
	id          string
	handle      watchdog.Handle
	startedAt   time.Time
	connectedAt time.Time
	endedAt     time.Time
}

// Controller owns the session phase. All entry points are serialized; shell
// and recorder effects are delivered after the state change, in the order the
// changes happened, and transport requests are issued without holding any
// controller lock.
type Controller struct {
	id              string
	caps            Capabilities
	transport       Transport
	shell           Shell
	recorder        Recorder
	clock           watchdog.Clock
	connectTimeout  time.Duration
	local           transcript.Participant
	agentName       string
	startButtonText string
	debug           bool
	newAggregator   func() *transcript.Aggregator
	newReconciler   func(enabled bool) *preconnect.Reconciler
	logger          zerolog.Logger

	// emitMu is taken before mu is released so effects keep their order.
	emitMu sync.Mutex

	mu          sync.Mutex
	wd          *watchdog.Watchdog
	phase       Phase
	attempt     *attempt
	agg         *transcript.Aggregator
	buf         *preconnect.Reconciler
	chatOpen    bool
	lastError   string
	lastVersion uint64
}

func NewController(caps Capabilities, transport Transport, shell Shell, opts ...Option) *Controller {
	c := &Controller{
		id:              uuid.NewString(),
		caps:            caps,
		transport:       transport,
		shell:           shell,
		local:           transcript.Participant{Identity: "local", IsLocal: true, DisplayName: "You"},
		startButtonText: DefaultStartButtonText,
		newAggregator:   func() *transcript.Aggregator { return transcript.NewAggregator() },
		newReconciler:   func(enabled bool) *preconnect.Reconciler { return preconnect.NewReconciler(enabled) },
		phase:           PhaseIdle,
	}
	for _, o := range opts {
		o(c)
	}
	if c.transport == nil {
		c.transport = nopTransport{}
	}
	if c.shell == nil {
		c.shell = ShellFuncs{}
	}
	if c.wd == nil {
		c.wd = watchdog.New(c.clock)
	}
	c.wd.SetTimeoutHandler(c.onWatchdogTimeout)
	c.agg = c.newAggregator()
	c.buf = c.newReconciler(c.caps.PreConnectBufferEnabled)
	c.logger = log.With().Str("component", "session").Str("session_id", c.id).Logger()
	return c
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Capabilities() Capabilities { return c.caps }

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns the current view state without notifying the shell.
func (c *Controller) Snapshot() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Derive(c.modelLocked())
}

// Controls returns the current control enablement.
func (c *Controller) Controls() Controls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DeriveControls(c.caps, c.phase)
}

// StartCall moves idle to connecting, arms the watchdog and asks the
// transport to connect.
func (c *Controller) StartCall(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		from := c.phase
		c.mu.Unlock()
		return invalidTransition("start call", from)
	}
	a := &attempt{
		id:        uuid.NewString(),
		startedAt: c.now(),
	}
	c.attempt = a
	c.lastError = ""
	a.handle = c.wd.Arm(c.connectTimeout)
	c.setPhaseLocked(PhaseConnecting)
	c.commitLocked(true)

	if err := c.transport.Connect(ctx, a.id); err != nil {
		c.logger.Warn().Err(err).Str("attempt_id", a.id).Msg("transport connect failed")
		if ferr := c.fail(a.id, errors.Wrap(err, "connect").Error()); ferr != nil {
			c.logger.Debug().Err(ferr).Msg("connect failure arrived after the attempt ended")
		}
		return errors.Wrap(err, "connect")
	}
	return nil
}

// Connected is reported by the transport once the call is established. The
// watchdog is disarmed before the phase changes, then the pre-connect buffer
// is merged into the transcript.
func (c *Controller) Connected(attemptID string) error {
	c.mu.Lock()
	if err := c.checkAttemptLocked(attemptID); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.phase != PhaseConnecting {
		from := c.phase
		c.mu.Unlock()
		return invalidTransition("connected", from)
	}
	a := c.attempt
	c.wd.Disarm(a.handle)
	a.handle = 0
	a.connectedAt = c.now()
	c.setPhaseLocked(PhaseActive)

	mark := c.agg.Mark()
	if n, err := c.buf.Flush(c.agg, mark, c.local); err != nil {
		c.logger.Warn().Err(err).Msg("pre-connect flush failed")
	} else if n > 0 {
		c.logger.Info().Int("entries", n).Str("attempt_id", a.id).Msg("merged pre-connect messages")
	}
	c.commitLocked(true)
	return nil
}

// Disconnected is reported by the transport when the call drops. An active
// call ends; a call still connecting ends as a failed attempt.
func (c *Controller) Disconnected(attemptID string, reason string) error {
	return c.fail(attemptID, reason)
}

func (c *Controller) fail(attemptID string, reason string) error {
	c.mu.Lock()
	if err := c.checkAttemptLocked(attemptID); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.phase.IsLive() {
		from := c.phase
		c.mu.Unlock()
		return invalidTransition("disconnected", from)
	}
	c.endLocked(PhaseEnded, reason)
	c.commitLocked(true)
	return nil
}

// LeaveCall ends a live attempt, cancelling the watchdog and dropping
// pre-connect text that was never sent. From a terminal phase it returns the
// session to idle.
func (c *Controller) LeaveCall(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.phase == PhaseIdle:
		c.mu.Unlock()
		return invalidTransition("leave call", PhaseIdle)
	case c.phase.IsTerminal():
		c.resetLocked()
		c.commitLocked(false)
		return nil
	}
	a := c.attempt
	c.endLocked(PhaseEnded, "")
	c.commitLocked(true)

	if err := c.transport.Leave(ctx, a.id); err != nil {
		c.logger.Warn().Err(err).Str("attempt_id", a.id).Msg("transport leave failed")
		return errors.Wrap(err, "leave")
	}
	return nil
}

// Reset returns a terminal session to idle with a fresh transcript and
// pre-connect buffer. Resetting an idle session is a no-op.
func (c *Controller) Reset() error {
	c.mu.Lock()
	switch {
	case c.phase == PhaseIdle:
		c.mu.Unlock()
		return nil
	case c.phase.IsLive():
		from := c.phase
		c.mu.Unlock()
		return invalidTransition("reset", from)
	}
	c.resetLocked()
	c.commitLocked(false)
	return nil
}

// ToggleChatOpen flips the chat pane and returns the new state. The pane
// stays closed while idle.
func (c *Controller) ToggleChatOpen() bool {
	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.mu.Unlock()
		return false
	}
	c.chatOpen = !c.chatOpen
	open := c.chatOpen
	c.commitLocked(false)
	return open
}

// SetChatOpen opens or closes the chat pane. It is ignored while idle.
func (c *Controller) SetChatOpen(open bool) {
	c.mu.Lock()
	if c.phase == PhaseIdle || c.chatOpen == open {
		c.mu.Unlock()
		return
	}
	c.chatOpen = open
	c.commitLocked(false)
}

// TypePreConnectText captures text typed before the call is active.
func (c *Controller) TypePreConnectText(text string) error {
	c.mu.Lock()
	if c.phase != PhaseIdle && c.phase != PhaseConnecting {
		from := c.phase
		c.mu.Unlock()
		return invalidTransition("pre-connect input", from)
	}
	if err := c.buf.Capture(text); err != nil {
		c.mu.Unlock()
		return err
	}
	c.commitLocked(false)
	return nil
}

// HandleChatEvent applies a transcript event from the transport. Events are
// accepted while an attempt is live.
func (c *Controller) HandleChatEvent(attemptID string, ev transcript.Event) error {
	c.mu.Lock()
	if err := c.checkAttemptLocked(attemptID); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.phase.IsLive() {
		from := c.phase
		c.mu.Unlock()
		return invalidTransition("chat event", from)
	}
	if _, changed := c.agg.Append(ev); !changed {
		c.mu.Unlock()
		return nil
	}
	c.commitLocked(false)
	return nil
}

// SendChat sends typed chat text while active. The text is recorded as a
// final local message before the transport is asked to deliver it.
func (c *Controller) SendChat(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		from := c.phase
		c.mu.Unlock()
		return invalidTransition("send chat", from)
	}
	if !DeriveControls(c.caps, c.phase).Chat {
		c.mu.Unlock()
		return ErrChatDisabled
	}
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return errors.New("chat text is empty")
	}
	id := c.attempt.id
	c.agg.Append(transcript.Event{Kind: transcript.KindFinal, Participant: c.local, Text: text})
	c.commitLocked(false)

	if err := c.transport.SendChat(ctx, id, text); err != nil {
		c.logger.Warn().Err(err).Str("attempt_id", id).Msg("transport send chat failed")
		return errors.Wrap(err, "send chat")
	}
	return nil
}

func (c *Controller) onWatchdogTimeout(h watchdog.Handle) {
	c.mu.Lock()
	if c.phase != PhaseConnecting || c.attempt == nil || c.attempt.handle != h {
		c.mu.Unlock()
		c.logger.Debug().Uint64("handle", uint64(h)).Msg("ignoring stale watchdog timeout")
		return
	}
	c.attempt.handle = 0
	c.endLocked(PhaseTimedOut, reasonTimedOut)
	c.commitLocked(true)
}

func (c *Controller) checkAttemptLocked(attemptID string) error {
	if attemptID == "" {
		return nil
	}
	if c.attempt == nil || c.attempt.id != attemptID {
		return errors.Wrapf(ErrStaleAttempt, "attempt %s", attemptID)
	}
	return nil
}

func (c *Controller) endLocked(to Phase, reason string) {
	a := c.attempt
	if a.handle != 0 {
		c.wd.Disarm(a.handle)
		a.handle = 0
	}
	if n := c.buf.Discard(); n > 0 {
		c.logger.Info().Int("entries", n).Str("attempt_id", a.id).Msg("discarded pre-connect messages")
	}
	a.endedAt = c.now()
	c.lastError = reason
	c.setPhaseLocked(to)
}

func (c *Controller) resetLocked() {
	c.attempt = nil
	c.agg = c.newAggregator()
	c.buf = c.newReconciler(c.caps.PreConnectBufferEnabled)
	c.chatOpen = false
	c.lastError = ""
	c.lastVersion = 0
	c.setPhaseLocked(PhaseIdle)
}

func (c *Controller) setPhaseLocked(to Phase) {
	from := c.phase
	c.phase = to
	ev := c.logger.Info().Str("from", from.String()).Str("to", to.String())
	if c.attempt != nil {
		ev = ev.Str("attempt_id", c.attempt.id)
	}
	ev.Msg("session phase changed")
}

func (c *Controller) now() time.Time {
	if c.clock != nil {
		return c.clock.Now()
	}
	return time.Now()
}

func (c *Controller) modelLocked() Model {
	m := Model{
		SessionID:         c.id,
		Phase:             c.phase,
		Capabilities:      c.caps,
		ChatOpen:          c.chatOpen,
		Messages:          c.agg.Messages(),
		PreConnect:        c.buf.Entries(),
		AgentName:         c.agentName,
		StartButtonText:   c.startButtonText,
		LastError:         c.lastError,
		Debug:             c.debug,
		TranscriptVersion: c.agg.Version(),
		PreConnectFlushed: c.buf.Flushed(),
	}
	if c.attempt != nil {
		m.AttemptID = c.attempt.id
	}
	_, m.WatchdogArmed = c.wd.Armed()
	if c.phase == PhaseConnecting {
		m.ConnectDeadline, _ = c.wd.Deadline()
	}
	return m
}

// commitLocked must be called with mu held; it releases mu. The view is
// rendered, the shell scrolls when the transcript changed and its newest
// entry is local, and phase changes are recorded.
func (c *Controller) commitLocked(phaseChanged bool) {
	view := Derive(c.modelLocked())
	version := c.agg.Version()
	scroll := version != c.lastVersion && c.agg.LastIsLocal()
	c.lastVersion = version

	var rec *Attempt
	if phaseChanged && c.recorder != nil && c.attempt != nil {
		rec = &Attempt{
			SessionID:    c.id,
			AttemptID:    c.attempt.id,
			Phase:        c.phase,
			StartedAt:    c.attempt.startedAt,
			ConnectedAt:  c.attempt.connectedAt,
			EndedAt:      c.attempt.endedAt,
			MessageCount: c.agg.Len(),
			LastError:    c.lastError,
		}
	}

	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	c.shell.Render(view)
	if scroll {
		c.shell.ScrollToBottom()
	}
	if rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := c.recorder.RecordAttempt(ctx, *rec); err != nil {
			c.logger.Warn().Err(err).Str("attempt_id", rec.AttemptID).Msg("failed to record attempt")
		}
	}
}
