package preconnect

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/agentcall/pkg/callerr"
	"github.com/go-go-golems/agentcall/pkg/transcript"
)

var me = transcript.Participant{Identity: "me", DisplayName: "Me"}

func TestReconciler_FlushMergesInCaptureOrder(t *testing.T) {
	r := NewReconciler(true)
	require.NoError(t, r.Capture("hi"))
	require.NoError(t, r.Capture("are you there?"))
	require.Len(t, r.Entries(), 2)

	agg := transcript.NewAggregator()
	n, err := r.Flush(agg, agg.Mark(), me)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Empty(t, r.Entries())
	require.True(t, r.Flushed())

	msgs := agg.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "hi", msgs[0].Text)
	require.Equal(t, "are you there?", msgs[1].Text)
	for _, m := range msgs {
		require.True(t, m.Originator.IsLocal)
		require.Equal(t, transcript.StateFinal, m.State)
	}
}

func TestReconciler_SecondFlushIsNoop(t *testing.T) {
	r := NewReconciler(true)
	require.NoError(t, r.Capture("hi"))
	agg := transcript.NewAggregator()

	_, err := r.Flush(agg, 0, me)
	require.NoError(t, err)

	n, err := r.Flush(agg, 0, me)
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, ErrAlreadyFlushed)
	require.True(t, callerr.IsFailedPrecondition(err))
	require.Equal(t, 1, agg.Len())
}

func TestReconciler_CaptureAfterFlushIsRejected(t *testing.T) {
	r := NewReconciler(true)
	_, err := r.Flush(transcript.NewAggregator(), 0, me)
	require.NoError(t, err)

	err = r.Capture("too late")
	require.True(t, errors.Is(err, callerr.ErrFailedPrecondition))
	require.Empty(t, r.Entries())
}

func TestReconciler_Discard(t *testing.T) {
	r := NewReconciler(true)
	require.NoError(t, r.Capture("a"))
	require.NoError(t, r.Capture("b"))
	require.Equal(t, 2, r.Discard())
	require.Equal(t, 0, r.Discard())

	require.ErrorIs(t, r.Capture("c"), ErrDiscarded)
	agg := transcript.NewAggregator()
	_, err := r.Flush(agg, 0, me)
	require.ErrorIs(t, err, ErrDiscarded)
	require.Equal(t, 0, agg.Len())
}

func TestReconciler_Validation(t *testing.T) {
	disabled := NewReconciler(false)
	require.ErrorIs(t, disabled.Capture("hi"), ErrDisabled)
	require.True(t, callerr.IsFailedPrecondition(disabled.Capture("hi")))

	r := NewReconciler(true, WithLimit(1))
	require.ErrorIs(t, r.Capture("   "), ErrEmptyText)
	require.NoError(t, r.Capture("one"))
	require.ErrorIs(t, r.Capture("two"), ErrBufferFull)
}

func TestReconciler_EmptyFlush(t *testing.T) {
	r := NewReconciler(true)
	agg := transcript.NewAggregator()
	n, err := r.Flush(agg, 0, me)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, uint64(0), agg.Version())
}
