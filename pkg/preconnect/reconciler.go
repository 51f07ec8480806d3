// Package preconnect buffers text typed before the call is connected and
// merges it into the transcript once the session becomes active.
package preconnect

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/go-go-golems/agentcall/pkg/callerr"
	"github.com/go-go-golems/agentcall/pkg/transcript"
)

const DefaultLimit = 256

var (
	ErrEmptyText      = errors.New("pre-connect text is empty")
	ErrBufferFull     = errors.New("pre-connect buffer is full")
	ErrDisabled       = errors.Wrap(callerr.ErrFailedPrecondition, "pre-connect buffer is disabled")
	ErrAlreadyFlushed = errors.Wrap(callerr.ErrFailedPrecondition, "pre-connect buffer already flushed")
	ErrDiscarded      = errors.Wrap(callerr.ErrFailedPrecondition, "pre-connect buffer was discarded")
)

// Entry is one piece of text captured before the session was active.
type Entry struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Merger receives the buffered entries on flush. *transcript.Aggregator implements it.
type Merger interface {
	Merge(mark uint64, msgs []transcript.Message) int
}

type state int

const (
	stateOpen state = iota
	stateFlushed
	stateDiscarded
)

// Reconciler owns the pre-connect buffer of one call attempt.
type Reconciler struct {
	enabled bool
	limit   int
	now     func() time.Time

	mu      sync.Mutex
	state   state
	entries []Entry
}

type Option func(*Reconciler)

func WithLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.limit = n
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReconciler(enabled bool, opts ...Option) *Reconciler {
	r := &Reconciler{
		enabled: enabled,
		limit:   DefaultLimit,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reconciler) Enabled() bool { return r.enabled }

// Capture appends text to the buffer. It is only valid before the buffer was
// flushed or discarded.
func (r *Reconciler) Capture(text string) error {
	if !r.enabled {
		return ErrDisabled
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case stateFlushed:
		return errors.Wrap(ErrAlreadyFlushed, "capture")
	case stateDiscarded:
		return errors.Wrap(ErrDiscarded, "capture")
	}
	if len(r.entries) >= r.limit {
		return errors.Wrapf(ErrBufferFull, "limit %d", r.limit)
	}
	r.entries = append(r.entries, Entry{
		ID:         uuid.NewString(),
		Text:       text,
		CapturedAt: r.now(),
	})
	return nil
}

// Flush merges the buffered entries into m as final messages from the local
// participant, inserted before any message newer than mark. The buffer is
// cleared. Only the first call merges anything; later calls return
// ErrAlreadyFlushed and leave m untouched.
func (r *Reconciler) Flush(m Merger, mark uint64, local transcript.Participant) (int, error) {
	r.mu.Lock()
	switch r.state {
	case stateFlushed:
		r.mu.Unlock()
		return 0, ErrAlreadyFlushed
	case stateDiscarded:
		r.mu.Unlock()
		return 0, ErrDiscarded
	}
	r.state = stateFlushed
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	if len(entries) == 0 || m == nil {
		return 0, nil
	}
	local.IsLocal = true
	msgs := lo.Map(entries, func(e Entry, _ int) transcript.Message {
		return transcript.Message{
			ID:         e.ID,
			Originator: local,
			Text:       e.Text,
			State:      transcript.StateFinal,
			ReceivedAt: e.CapturedAt,
		}
	})
	n := m.Merge(mark, msgs)
	log.Debug().Str("component", "preconnect").Int("entries", n).Msg("flushed pre-connect buffer")
	return n, nil
}

// Discard drops the buffered entries; the buffer accepts no further input.
// It returns the number of dropped entries.
func (r *Reconciler) Discard() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateOpen {
		return 0
	}
	n := len(r.entries)
	r.entries = nil
	r.state = stateDiscarded
	return n
}

// Entries returns a copy of the buffered entries.
func (r *Reconciler) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

func (r *Reconciler) Flushed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateFlushed
}
