// Package transcript keeps the ordered chat/transcript log of a call.
//
// Messages are ordered by the first time their id was observed. Streaming
// sources create pending messages which are later updated and finalized in
// place; finalization never moves a message.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Aggregator maintains the message log for one session.
type Aggregator struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Message
	clock   uint64
	version uint64

	now   func() time.Time
	newID func() string
}

type Option func(*Aggregator)

// WithNow overrides the wall clock used for Message.ReceivedAt.
func WithNow(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator overrides the generator used for events that carry no id.
func WithIDGenerator(fn func() string) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.newID = fn
		}
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		entries: map[string]*Message{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Append applies one transcript event. It returns the resulting message and
// whether the log changed.
func (a *Aggregator) Append(ev Event) (Message, bool) {
	if a == nil {
		return Message{}, false
	}
	kind := ev.Kind
	if !kind.Valid() {
		log.Debug().Str("component", "transcript").Str("kind", string(kind)).Msg("unknown event kind, treating as final")
		kind = KindFinal
	}
	id := strings.TrimSpace(ev.ID)

	a.mu.Lock()
	defer a.mu.Unlock()

	if id == "" {
		id = a.newID()
	}
	existing := a.entries[id]

	switch kind {
	case KindPartial:
		if existing != nil {
			return a.updateLocked(existing, ev.Text, false)
		}
		return a.insertLocked(id, ev.Participant, ev.Text, StatePending), true

	case KindUpdate:
		if existing == nil {
			// The pending message was never seen; keep the content rather than drop it.
			return a.insertLocked(id, ev.Participant, ev.Text, StateFinal), true
		}
		return a.updateLocked(existing, ev.Text, false)

	case KindFinalize, KindFinal:
		if existing == nil {
			return a.insertLocked(id, ev.Participant, ev.Text, StateFinal), true
		}
		return a.updateLocked(existing, ev.Text, true)
	}
	return Message{}, false
}

func (a *Aggregator) insertLocked(id string, from Participant, text string, state MessageState) Message {
	a.clock++
	a.version++
	m := &Message{
		ID:         id,
		Originator: from,
		Text:       text,
		Timestamp:  a.clock,
		State:      state,
		ReceivedAt: a.now(),
	}
	a.entries[id] = m
	a.order = append(a.order, id)
	return *m
}

func (a *Aggregator) updateLocked(m *Message, text string, finalize bool) (Message, bool) {
	if m.State == StateFinal {
		log.Debug().Str("component", "transcript").Str("message_id", m.ID).Msg("ignoring event for final message")
		return *m, false
	}
	changed := false
	// An empty finalize keeps the streamed content.
	if text != "" && text != m.Text {
		m.Text = text
		changed = true
	}
	if finalize {
		m.State = StateFinal
		changed = true
	}
	if changed {
		a.version++
	}
	return *m, changed
}

// Merge inserts final messages before the first message whose timestamp is
// greater than mark, preserving the order of msgs. Messages whose id already
// exists are skipped. Inserted messages take the timestamps following mark and
// the later messages move up, so timestamps stay unique and follow log order.
// It returns the number of inserted messages.
func (a *Aggregator) Merge(mark uint64, msgs []Message) int {
	if a == nil || len(msgs) == 0 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	_, pos, ok := lo.FindIndexOf(a.order, func(id string) bool {
		return a.entries[id].Timestamp > mark
	})
	if !ok {
		pos = len(a.order)
	}

	now := a.now()
	ids := make([]string, 0, len(msgs))
	for _, in := range msgs {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			id = a.newID()
		}
		if _, exists := a.entries[id]; exists {
			continue
		}
		m := in
		m.ID = id
		m.State = StateFinal
		if m.ReceivedAt.IsZero() {
			m.ReceivedAt = now
		}
		a.entries[id] = &m
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0
	}

	n := uint64(len(ids))
	for i, id := range ids {
		a.entries[id].Timestamp = mark + uint64(i) + 1
	}
	for _, id := range a.order[pos:] {
		a.entries[id].Timestamp += n
	}
	a.clock = max(a.clock, mark) + n

	order := make([]string, 0, len(a.order)+len(ids))
	order = append(order, a.order[:pos]...)
	order = append(order, ids...)
	order = append(order, a.order[pos:]...)
	a.order = order
	a.version++
	return len(ids)
}

// Messages returns a copy of the log in order.
func (a *Aggregator) Messages() []Message {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return lo.Map(a.order, func(id string, _ int) Message {
		return *a.entries[id]
	})
}

func (a *Aggregator) Get(id string) (Message, bool) {
	if a == nil {
		return Message{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.entries[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

func (a *Aggregator) Last() (Message, bool) {
	if a == nil {
		return Message{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.order) == 0 {
		return Message{}, false
	}
	return *a.entries[a.order[len(a.order)-1]], true
}

// LastIsLocal is true exactly when the newest entry was sent by the local participant.
func (a *Aggregator) LastIsLocal() bool {
	m, ok := a.Last()
	return ok && m.Originator.IsLocal
}

func (a *Aggregator) Len() int {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// Mark returns the timestamp of the most recently observed message.
func (a *Aggregator) Mark() uint64 {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clock
}

// Version increases every time the log changes.
func (a *Aggregator) Version() uint64 {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}
