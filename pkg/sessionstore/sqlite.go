package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile enables WAL and a busy timeout so the CLI can read the
// history while a session is writing it.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_attempts (
			attempt_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			started_at_ms INTEGER NOT NULL,
			connected_at_ms INTEGER NOT NULL DEFAULT 0,
			ended_at_ms INTEGER NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS call_attempts_by_session
			ON call_attempts(session_id, started_at_ms DESC)`,
		`CREATE INDEX IF NOT EXISTS call_attempts_by_started
			ON call_attempts(started_at_ms DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "sqlite session store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertAttempt(ctx context.Context, record AttemptRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	record, err := normalizeAttemptRecord(record, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite session store")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO call_attempts (
			attempt_id, session_id, phase, started_at_ms, connected_at_ms,
			ended_at_ms, message_count, last_error, updated_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET
			phase = excluded.phase,
			started_at_ms = CASE
				WHEN call_attempts.started_at_ms > 0 THEN call_attempts.started_at_ms
				ELSE excluded.started_at_ms
			END,
			connected_at_ms = CASE
				WHEN excluded.connected_at_ms > 0 THEN excluded.connected_at_ms
				ELSE call_attempts.connected_at_ms
			END,
			ended_at_ms = CASE
				WHEN excluded.ended_at_ms > 0 THEN excluded.ended_at_ms
				ELSE call_attempts.ended_at_ms
			END,
			message_count = CASE
				WHEN excluded.message_count > call_attempts.message_count THEN excluded.message_count
				ELSE call_attempts.message_count
			END,
			last_error = CASE
				WHEN excluded.last_error <> '' THEN excluded.last_error
				ELSE call_attempts.last_error
			END,
			updated_at_ms = excluded.updated_at_ms
	`, record.AttemptID, record.SessionID, record.Phase, record.StartedAtMs, record.ConnectedAtMs,
		record.EndedAtMs, record.MessageCount, record.LastError, record.UpdatedAtMs)
	if err != nil {
		return errors.Wrap(err, "sqlite session store: upsert attempt")
	}
	return nil
}

const selectAttemptColumns = `
	SELECT attempt_id, session_id, phase, started_at_ms, connected_at_ms,
	       ended_at_ms, message_count, last_error, updated_at_ms
	FROM call_attempts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (AttemptRecord, error) {
	var r AttemptRecord
	err := row.Scan(
		&r.AttemptID,
		&r.SessionID,
		&r.Phase,
		&r.StartedAtMs,
		&r.ConnectedAtMs,
		&r.EndedAtMs,
		&r.MessageCount,
		&r.LastError,
		&r.UpdatedAtMs,
	)
	return r, err
}

func (s *SQLiteStore) GetAttempt(ctx context.Context, attemptID string) (AttemptRecord, bool, error) {
	if s == nil || s.db == nil {
		return AttemptRecord{}, false, errors.New("sqlite session store: db is nil")
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return AttemptRecord{}, false, errors.New("sqlite session store: attempt id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := scanAttempt(s.db.QueryRowContext(ctx, selectAttemptColumns+` WHERE attempt_id = ?`, attemptID))
	if errors.Is(err, sql.ErrNoRows) {
		return AttemptRecord{}, false, nil
	}
	if err != nil {
		return AttemptRecord{}, false, errors.Wrap(err, "sqlite session store: get attempt")
	}
	return r, true, nil
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, sessionID string, limit int) ([]AttemptRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := selectAttemptColumns
	args := make([]any, 0, 2)
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at_ms DESC, attempt_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: list attempts")
	}
	defer func() { _ = rows.Close() }()

	records := make([]AttemptRecord, 0, limit)
	for rows.Next() {
		r, err := scanAttempt(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite session store: scan attempt")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite session store: list attempts")
	}
	return records, nil
}
