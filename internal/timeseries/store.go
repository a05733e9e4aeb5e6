// Package timeseries provides the measurement store behind trend computation
// and twin snapshot persistence. The store is opaque to callers: rows in,
// time-descending points out.
package timeseries

import (
	"context"
	"time"
)

// MetricTwinState is the synthetic metric whose meta carries a serialized
// twin snapshot.
const MetricTwinState = "twin_state"

// Row is one measurement to insert.
type Row struct {
	UserID    string
	Metric    string
	Timestamp time.Time
	Value     float64
	Meta      map[string]any
}

// Point is one measurement returned from a query.
type Point struct {
	Timestamp time.Time
	Value     float64
	Meta      map[string]any
}

// Query selects points for one user and metric. Zero Start/End mean
// unbounded; results are ordered by time descending and capped at Limit.
type Query struct {
	UserID string
	Metric string
	Start  time.Time
	End    time.Time
	Limit  int
}

// Store is the time-series contract. Both operations apply bounded timeouts
// at the implementation level and surface sentinel.ErrStoreUnavailable on
// backend failure.
type Store interface {
	Insert(ctx context.Context, rows []Row) (int, error)
	Query(ctx context.Context, q Query) ([]Point, error)
}
