// Package runlog persists the outcome of replication runs to Postgres so
// operators can audit what each source did and when.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is one recorded replication attempt.
type Run struct {
	RunID       string
	SourceID    string
	JobName     string
	Status      string
	StreamCount int
	Detail      []byte
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store defines the run log operations.
type Store interface {
	RecordRun(ctx context.Context, run Run) error
	RecentRuns(ctx context.Context, sourceID string, limit int) ([]Run, error)
	Close()
}

// PostgresStore implements Store backed by Postgres.
type PostgresStore struct {
	db *pgxpool.Pool
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("runlog dsn is required")
	}
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect runlog: %w", err)
	}
	store := &PostgresStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS replication_runs (
	run_id       TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL,
	job_name     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	stream_count INT NOT NULL DEFAULT 0,
	detail       JSONB,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS replication_runs_source_idx
	ON replication_runs (source_id, completed_at DESC);`)
	if err != nil {
		return fmt.Errorf("ensure runlog schema: %w", err)
	}
	return nil
}

// RecordRun upserts the run keyed by run ID. Re-recording the same run
// replaces the previous row so retried activities stay idempotent.
func (s *PostgresStore) RecordRun(ctx context.Context, run Run) error {
	if run.RunID == "" {
		return errors.New("run.RunID is required")
	}
	if run.SourceID == "" {
		return errors.New("run.SourceID is required")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO replication_runs
	(run_id, source_id, job_name, status, stream_count, detail, error, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id) DO UPDATE SET
	source_id = EXCLUDED.source_id,
	job_name = EXCLUDED.job_name,
	status = EXCLUDED.status,
	stream_count = EXCLUDED.stream_count,
	detail = EXCLUDED.detail,
	error = EXCLUDED.error,
	started_at = EXCLUDED.started_at,
	completed_at = EXCLUDED.completed_at;`,
		run.RunID, run.SourceID, run.JobName, run.Status, run.StreamCount,
		run.Detail, run.Error, run.StartedAt.UTC(), run.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns the latest runs for a source, newest first.
func (s *PostgresStore) RecentRuns(ctx context.Context, sourceID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `SELECT run_id, source_id, job_name, status,
	stream_count, detail, error, started_at, completed_at
FROM replication_runs
WHERE source_id = $1
ORDER BY completed_at DESC
LIMIT $2;`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for %s: %w", sourceID, err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.RunID, &run.SourceID, &run.JobName, &run.Status,
			&run.StreamCount, &run.Detail, &run.Error, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// LastRun returns the newest run for a source, or nil when none exist.
func (s *PostgresStore) LastRun(ctx context.Context, sourceID string) (*Run, error) {
	runs, err := s.RecentRuns(ctx, sourceID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}
