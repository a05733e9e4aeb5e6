package timeseries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"vitaex/pkg/platform/sentinel"
)

// PostgresStore persists measurements in PostgreSQL. When TimescaleDB is
// installed the measurements table is converted to a hypertable; plain
// PostgreSQL works too, just without compression and chunking.
type PostgresStore struct {
	db        *sql.DB
	opTimeout time.Duration
	log       *log.Logger
}

// Open connects via lib/pq and pings the database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open timeseries db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping timeseries db: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB, opTimeout time.Duration, logger *log.Logger) *PostgresStore {
	return &PostgresStore{db: db, opTimeout: opTimeout, log: logger}
}

// EnsureSchema creates the measurements table and attempts the TimescaleDB
// conversion. The conversion failing (extension absent) is logged, not fatal.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS measurements (
			user_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			value DOUBLE PRECISION,
			meta JSONB DEFAULT '{}'::jsonb
		)`)
	if err != nil {
		return fmt.Errorf("ensure measurements schema: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS timescaledb`); err != nil {
		s.log.Printf("timescaledb extension unavailable, using plain table: %v", err)
	} else if _, err := s.db.ExecContext(ctx,
		`SELECT create_hypertable('measurements', 'ts', if_not_exists => TRUE)`); err != nil {
		s.log.Printf("hypertable conversion skipped: %v", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_measurements_user_metric ON measurements(user_id, metric, ts DESC)`)
	if err != nil {
		return fmt.Errorf("ensure measurements index: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO measurements (user_id, metric, ts, value, meta)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	defer stmt.Close()

	for _, row := range rows {
		meta, err := json.Marshal(row.Meta)
		if err != nil {
			return 0, fmt.Errorf("marshal meta for %s/%s: %w", row.UserID, row.Metric, err)
		}
		if _, err := stmt.ExecContext(ctx, row.UserID, row.Metric, row.Timestamp, row.Value, meta); err != nil {
			return 0, fmt.Errorf("insert measurement: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	return len(rows), nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Point, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	where := "WHERE user_id = $1 AND metric = $2"
	args := []any{q.UserID, q.Metric}
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		where += " AND ts >= $" + strconv.Itoa(len(args))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		where += " AND ts <= $" + strconv.Itoa(len(args))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value, meta FROM measurements `+where+`
		ORDER BY ts DESC LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", errors.Join(sentinel.ErrStoreUnavailable, err))
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var point Point
		var value sql.NullFloat64
		var meta []byte
		if err := rows.Scan(&point.Timestamp, &value, &meta); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		point.Value = value.Float64
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &point.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal meta: %w", err)
			}
		}
		points = append(points, point)
	}
	return points, rows.Err()
}
