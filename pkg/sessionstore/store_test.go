package sessionstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/agentcall/pkg/session"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStore_AttemptLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := Recorder{Store: s}
			start := time.UnixMilli(1_000_000)

			require.NoError(t, rec.RecordAttempt(ctx, session.Attempt{
				SessionID: "s1", AttemptID: "a1", Phase: session.PhaseConnecting, StartedAt: start,
			}))
			require.NoError(t, rec.RecordAttempt(ctx, session.Attempt{
				SessionID: "s1", AttemptID: "a1", Phase: session.PhaseActive,
				StartedAt: start, ConnectedAt: start.Add(1500 * time.Millisecond), MessageCount: 2,
			}))
			require.NoError(t, rec.RecordAttempt(ctx, session.Attempt{
				SessionID: "s1", AttemptID: "a1", Phase: session.PhaseEnded,
				StartedAt: start, EndedAt: start.Add(time.Minute), MessageCount: 5, LastError: "hangup",
			}))

			got, ok, err := s.GetAttempt(ctx, "a1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "ended", got.Phase)
			require.Equal(t, start.UnixMilli(), got.StartedAtMs)
			require.Equal(t, 5, got.MessageCount)
			require.Equal(t, "hangup", got.LastError)
			latency, ok := got.ConnectLatency()
			require.True(t, ok)
			require.Equal(t, 1500*time.Millisecond, latency)

			_, ok, err = s.GetAttempt(ctx, "missing")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"a1", "a2", "a3"} {
				require.NoError(t, s.UpsertAttempt(ctx, AttemptRecord{
					AttemptID: id, SessionID: "s1", Phase: "timedOut", StartedAtMs: int64(100 + i),
				}))
			}
			require.NoError(t, s.UpsertAttempt(ctx, AttemptRecord{
				AttemptID: "b1", SessionID: "s2", Phase: "ended", StartedAtMs: 50,
			}))

			all, err := s.ListAttempts(ctx, "", 0)
			require.NoError(t, err)
			require.Len(t, all, 4)

			s1, err := s.ListAttempts(ctx, "s1", 2)
			require.NoError(t, err)
			require.Len(t, s1, 2)
			require.Equal(t, "a3", s1[0].AttemptID)
			require.Equal(t, "a2", s1[1].AttemptID)
		})
	}
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.Error(t, s.UpsertAttempt(ctx, AttemptRecord{SessionID: "s1", Phase: "idle"}))
			require.Error(t, s.UpsertAttempt(ctx, AttemptRecord{AttemptID: "a", Phase: "idle"}))
			require.Error(t, s.UpsertAttempt(ctx, AttemptRecord{AttemptID: "a", SessionID: "s1", Phase: "dialing"}))
		})
	}
}
