package transcript

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	agent = Participant{Identity: "agent-1", DisplayName: "Agent"}
	me    = Participant{Identity: "me", IsLocal: true, DisplayName: "Me"}
)

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestAggregator_PendingKeepsSlotWhenFinalized(t *testing.T) {
	a := NewAggregator()

	_, changed := a.Append(Event{Kind: KindPartial, ID: "1", Participant: agent, Text: "hel"})
	require.True(t, changed)
	_, changed = a.Append(Event{Kind: KindFinal, ID: "2", Participant: me, Text: "hi"})
	require.True(t, changed)
	m, changed := a.Append(Event{Kind: KindFinalize, ID: "1", Text: "hello"})
	require.True(t, changed)
	require.Equal(t, StateFinal, m.State)
	require.Equal(t, "hello", m.Text)
	require.Equal(t, agent, m.Originator)

	require.Equal(t, []string{"1", "2"}, ids(a.Messages()))
}

func TestAggregator_UnknownIDBecomesFinal(t *testing.T) {
	a := NewAggregator()

	m, changed := a.Append(Event{Kind: KindUpdate, ID: "ghost", Participant: agent, Text: "late"})
	require.True(t, changed)
	require.Equal(t, StateFinal, m.State)

	m, changed = a.Append(Event{Kind: KindFinalize, ID: "ghost-2", Participant: agent, Text: "later"})
	require.True(t, changed)
	require.Equal(t, StateFinal, m.State)
	require.Equal(t, []string{"ghost", "ghost-2"}, ids(a.Messages()))
}

func TestAggregator_FinalIsTerminal(t *testing.T) {
	a := NewAggregator()
	a.Append(Event{Kind: KindFinal, ID: "1", Participant: agent, Text: "done"})
	v := a.Version()

	_, changed := a.Append(Event{Kind: KindUpdate, ID: "1", Text: "changed"})
	require.False(t, changed)
	_, changed = a.Append(Event{Kind: KindFinal, ID: "1", Participant: agent, Text: "done"})
	require.False(t, changed)
	_, changed = a.Append(Event{Kind: KindPartial, ID: "1", Participant: agent, Text: "again"})
	require.False(t, changed)

	m, ok := a.Get("1")
	require.True(t, ok)
	require.Equal(t, "done", m.Text)
	require.Equal(t, v, a.Version())
	require.Equal(t, 1, a.Len())
}

func TestAggregator_DuplicatePartialIsUpdate(t *testing.T) {
	a := NewAggregator()
	a.Append(Event{Kind: KindPartial, ID: "1", Participant: agent, Text: "a"})
	a.Append(Event{Kind: KindPartial, ID: "1", Participant: agent, Text: "ab"})
	a.Append(Event{Kind: KindUpdate, ID: "1", Text: "abc"})

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "abc", msgs[0].Text)
	require.Equal(t, StatePending, msgs[0].State)
}

func TestAggregator_EmptyFinalizeKeepsStreamedText(t *testing.T) {
	a := NewAggregator()
	a.Append(Event{Kind: KindPartial, ID: "1", Participant: agent, Text: "streamed"})
	m, changed := a.Append(Event{Kind: KindFinalize, ID: "1"})
	require.True(t, changed)
	require.Equal(t, "streamed", m.Text)
	require.True(t, m.IsFinal())
}

func TestAggregator_GeneratesMissingIDs(t *testing.T) {
	n := 0
	a := NewAggregator(WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}))
	a.Append(Event{Kind: KindFinal, Participant: agent, Text: "x"})
	a.Append(Event{Kind: KindFinal, Participant: agent, Text: "y"})
	require.Equal(t, []string{"gen-1", "gen-2"}, ids(a.Messages()))
}

func TestAggregator_FinalOrderIsStable(t *testing.T) {
	a := NewAggregator()
	events := []Event{
		{Kind: KindFinal, ID: "a", Participant: agent, Text: "1"},
		{Kind: KindPartial, ID: "b", Participant: me, Text: "2"},
		{Kind: KindFinal, ID: "c", Participant: agent, Text: "3"},
		{Kind: KindUpdate, ID: "b", Text: "2!"},
		{Kind: KindFinal, ID: "a", Participant: agent, Text: "1 again"},
		{Kind: KindFinalize, ID: "b", Text: "2!!"},
		{Kind: KindFinal, ID: "d", Participant: me, Text: "4"},
	}
	var finals [][]string
	for _, ev := range events {
		a.Append(ev)
		var f []string
		for _, m := range a.Messages() {
			if m.IsFinal() {
				f = append(f, m.ID)
			}
		}
		finals = append(finals, f)
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, finals[len(finals)-1])
	// every earlier snapshot of final ids is a subsequence of the last one
	last := finals[len(finals)-1]
	for _, f := range finals {
		j := 0
		for _, id := range last {
			if j < len(f) && f[j] == id {
				j++
			}
		}
		require.Equal(t, len(f), j, "final order changed: %v vs %v", f, last)
	}
}

func TestAggregator_LastIsLocal(t *testing.T) {
	a := NewAggregator()
	require.False(t, a.LastIsLocal())

	a.Append(Event{Kind: KindFinal, ID: "1", Participant: agent, Text: "hello"})
	require.False(t, a.LastIsLocal())

	a.Append(Event{Kind: KindFinal, ID: "2", Participant: me, Text: "hi"})
	require.True(t, a.LastIsLocal())

	// finalizing an older remote message does not change which entry is last
	a.Append(Event{Kind: KindPartial, ID: "3", Participant: agent, Text: "..."})
	require.False(t, a.LastIsLocal())
}

func TestAggregator_MergeInsertsBeforeLaterArrivals(t *testing.T) {
	a := NewAggregator()
	a.Append(Event{Kind: KindFinal, ID: "early", Participant: agent, Text: "while connecting"})
	mark := a.Mark()
	a.Append(Event{Kind: KindFinal, ID: "late", Participant: agent, Text: "after connect"})

	n := a.Merge(mark, []Message{
		{ID: "p1", Originator: me, Text: "first"},
		{ID: "p2", Originator: me, Text: "second"},
	})
	require.Equal(t, 2, n)
	require.Equal(t, []string{"early", "p1", "p2", "late"}, ids(a.Messages()))

	for _, m := range a.Messages() {
		require.True(t, m.IsFinal())
	}

	// merging the same ids again inserts nothing
	require.Equal(t, 0, a.Merge(mark, []Message{{ID: "p1", Originator: me, Text: "first"}}))
	require.Equal(t, 4, a.Len())
}

func TestAggregator_MergeIntoEmptyLog(t *testing.T) {
	a := NewAggregator()
	n := a.Merge(a.Mark(), []Message{{Originator: me, Text: "hi"}})
	require.Equal(t, 1, n)
	require.True(t, a.LastIsLocal())
	require.Equal(t, "hi", a.Messages()[0].Text)
}

func TestAggregator_MergeKeepsTimestampsIncreasing(t *testing.T) {
	a := NewAggregator()
	a.Append(Event{Kind: KindFinal, ID: "early", Participant: agent, Text: "while connecting"})
	mark := a.Mark()
	a.Append(Event{Kind: KindPartial, ID: "late", Participant: agent, Text: "after"})
	a.Append(Event{Kind: KindFinal, ID: "later", Participant: agent, Text: "much after"})

	require.Equal(t, 2, a.Merge(mark, []Message{
		{ID: "p1", Originator: me, Text: "first"},
		{ID: "p2", Originator: me, Text: "second"},
	}))
	a.Append(Event{Kind: KindFinal, ID: "last", Participant: me, Text: "done"})

	msgs := a.Messages()
	require.Equal(t, []string{"early", "p1", "p2", "late", "later", "last"}, ids(msgs))
	for i := 1; i < len(msgs); i++ {
		require.Greater(t, msgs[i].Timestamp, msgs[i-1].Timestamp, msgs[i].ID)
	}
	require.Equal(t, msgs[len(msgs)-1].Timestamp, a.Mark())

	// a merge at the new mark lands after every existing message
	require.Equal(t, 1, a.Merge(a.Mark(), []Message{{ID: "p3", Originator: me, Text: "tail"}}))
	msgs = a.Messages()
	require.Equal(t, "p3", msgs[len(msgs)-1].ID)
	require.Greater(t, msgs[len(msgs)-1].Timestamp, msgs[len(msgs)-2].Timestamp)
}
