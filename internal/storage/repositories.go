package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is a fixed-width UTC layout so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime formats t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp, accepting RFC 3339 as well.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// IngestRun is one batch ingestion recorded in ingest_runs.
type IngestRun struct {
	RunID      string     `json:"runId"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Report     string     `json:"-"` // JSON batch report
}

// RunRepository provides CRUD operations for the ingest_runs table
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a started run
func (r *RunRepository) Create(ctx context.Context, run *IngestRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, status, started_at, finished_at, report)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.Status,
		FormatTime(run.StartedAt),
		formatTimePtr(run.FinishedAt),
		nonEmpty(run.Report, "{}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest run: %w", err)
	}
	return nil
}

// Finish records the final status and report of a run
func (r *RunRepository) Finish(ctx context.Context, runID, status, report string, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ingest_runs SET status = ?, report = ?, finished_at = ?
		WHERE run_id = ?
	`, status, nonEmpty(report, "{}"), FormatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to finish ingest run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingest run not found: %s", runID)
	}
	return nil
}

// Get returns a run by id, or nil if it does not exist
func (r *RunRepository) Get(ctx context.Context, runID string) (*IngestRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, status, started_at, finished_at, report
		FROM ingest_runs WHERE run_id = ?
	`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingest run: %w", err)
	}
	return run, nil
}

// Recent returns the most recently started runs
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]*IngestRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, status, started_at, finished_at, report
		FROM ingest_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []*IngestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*IngestRun, error) {
	var (
		run        IngestRun
		startedAt  string
		finishedAt sql.NullString
	)
	if err := s.Scan(&run.RunID, &run.Status, &startedAt, &finishedAt, &run.Report); err != nil {
		return nil, err
	}
	t, err := ParseTime(startedAt)
	if err != nil {
		return nil, err
	}
	run.StartedAt = t
	if finishedAt.Valid {
		ft, err := ParseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &ft
	}
	return &run, nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
