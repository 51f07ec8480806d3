// Package sessionstore keeps a history of call attempts: when each attempt
// started, whether it connected and how it ended. Transcript contents are not
// stored.
package sessionstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/agentcall/pkg/session"
)

// AttemptRecord is the stored summary of one call attempt. Times are unix
// milliseconds; zero means unset.
type AttemptRecord struct {
	AttemptID     string `json:"attemptId"`
	SessionID     string `json:"sessionId"`
	Phase         string `json:"phase"`
	StartedAtMs   int64  `json:"startedAtMs"`
	ConnectedAtMs int64  `json:"connectedAtMs,omitempty"`
	EndedAtMs     int64  `json:"endedAtMs,omitempty"`
	MessageCount  int    `json:"messageCount"`
	LastError     string `json:"lastError,omitempty"`
	UpdatedAtMs   int64  `json:"updatedAtMs"`
}

// ConnectLatency is the time from start to connected, if the attempt connected.
func (r AttemptRecord) ConnectLatency() (time.Duration, bool) {
	if r.ConnectedAtMs == 0 || r.StartedAtMs == 0 {
		return 0, false
	}
	return time.Duration(r.ConnectedAtMs-r.StartedAtMs) * time.Millisecond, true
}

type Store interface {
	UpsertAttempt(ctx context.Context, record AttemptRecord) error
	GetAttempt(ctx context.Context, attemptID string) (AttemptRecord, bool, error)
	// ListAttempts returns the newest attempts first. An empty sessionID lists
	// all sessions.
	ListAttempts(ctx context.Context, sessionID string, limit int) ([]AttemptRecord, error)
	Close() error
}

const defaultListLimit = 200

// Recorder adapts a Store to session.Recorder.
type Recorder struct {
	Store Store
}

var _ session.Recorder = Recorder{}

func (r Recorder) RecordAttempt(ctx context.Context, a session.Attempt) error {
	if r.Store == nil {
		return nil
	}
	return r.Store.UpsertAttempt(ctx, FromAttempt(a))
}

func FromAttempt(a session.Attempt) AttemptRecord {
	return AttemptRecord{
		AttemptID:     a.AttemptID,
		SessionID:     a.SessionID,
		Phase:         a.Phase.String(),
		StartedAtMs:   unixMs(a.StartedAt),
		ConnectedAtMs: unixMs(a.ConnectedAt),
		EndedAtMs:     unixMs(a.EndedAt),
		MessageCount:  a.MessageCount,
		LastError:     a.LastError,
	}
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func normalizeAttemptRecord(record AttemptRecord, nowMs int64) (AttemptRecord, error) {
	record.AttemptID = strings.TrimSpace(record.AttemptID)
	record.SessionID = strings.TrimSpace(record.SessionID)
	if record.AttemptID == "" {
		return record, errors.New("attempt id is empty")
	}
	if record.SessionID == "" {
		return record, errors.New("session id is empty")
	}
	if _, err := session.ParsePhase(record.Phase); err != nil {
		return record, err
	}
	if record.StartedAtMs <= 0 {
		record.StartedAtMs = nowMs
	}
	record.UpdatedAtMs = nowMs
	return record, nil
}

// merge applies an update to an existing record: set fields win, unset fields
// keep their stored value.
func merge(existing, update AttemptRecord) AttemptRecord {
	out := update
	if existing.StartedAtMs > 0 {
		out.StartedAtMs = existing.StartedAtMs
	}
	if out.ConnectedAtMs == 0 {
		out.ConnectedAtMs = existing.ConnectedAtMs
	}
	if out.EndedAtMs == 0 {
		out.EndedAtMs = existing.EndedAtMs
	}
	if out.LastError == "" {
		out.LastError = existing.LastError
	}
	if out.MessageCount < existing.MessageCount {
		out.MessageCount = existing.MessageCount
	}
	return out
}
