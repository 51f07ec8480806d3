package sessionstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]AttemptRecord
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attempts: map[string]AttemptRecord{}}
}

func (s *InMemoryStore) UpsertAttempt(_ context.Context, record AttemptRecord) error {
	record, err := normalizeAttemptRecord(record, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.attempts[record.AttemptID]; ok {
		record = merge(existing, record)
	}
	s.attempts[record.AttemptID] = record
	return nil
}

func (s *InMemoryStore) GetAttempt(_ context.Context, attemptID string) (AttemptRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.attempts[strings.TrimSpace(attemptID)]
	return r, ok, nil
}

func (s *InMemoryStore) ListAttempts(_ context.Context, sessionID string, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.RLock()
	records := lo.Filter(lo.Values(s.attempts), func(r AttemptRecord, _ int) bool {
		return sessionID == "" || r.SessionID == sessionID
	})
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].StartedAtMs != records[j].StartedAtMs {
			return records[i].StartedAtMs > records[j].StartedAtMs
		}
		return records[i].AttemptID < records[j].AttemptID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *InMemoryStore) Close() error { return nil }
