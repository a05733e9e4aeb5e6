package consent

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps consent records per user. Suitable for tests and
// single-process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) Grant(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = append(s.records[record.UserID], record)
	return nil
}

func (s *InMemoryStore) Revoke(_ context.Context, userID string, purpose Purpose, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[userID]
	for i := range records {
		if records[i].Purpose == purpose {
			at := revokedAt
			records[i].RevokedAt = &at
		}
	}
	s.records[userID] = records
	return nil
}

func (s *InMemoryStore) Check(_ context.Context, userID string, purpose Purpose) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	for _, record := range s.records[userID] {
		if record.Purpose == purpose && record.IsActive(now) {
			return true, nil
		}
	}
	return false, nil
}
