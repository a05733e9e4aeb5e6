package timeseries

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore holds measurements per user and metric. Query semantics
// mirror the Postgres implementation: time-descending, range-filtered,
// limit-capped.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[string][]Row
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string][]Row)}
}

func seriesKey(userID, metric string) string {
	return userID + "\x00" + metric
}

func (s *InMemoryStore) Insert(_ context.Context, rows []Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		key := seriesKey(row.UserID, row.Metric)
		s.rows[key] = append(s.rows[key], row)
	}
	return len(rows), nil
}

func (s *InMemoryStore) Query(_ context.Context, q Query) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []Point
	for _, row := range s.rows[seriesKey(q.UserID, q.Metric)] {
		if !q.Start.IsZero() && row.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && row.Timestamp.After(q.End) {
			continue
		}
		points = append(points, Point{Timestamp: row.Timestamp, Value: row.Value, Meta: row.Meta})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.After(points[j].Timestamp)
	})
	if q.Limit > 0 && len(points) > q.Limit {
		points = points[:q.Limit]
	}
	return points, nil
}
