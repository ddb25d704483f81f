package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"reflow_oven/internal/models"
)

// RunSQLite keeps one summary row per finished run. Stage summaries are
// stored as a JSON column.
type RunSQLite struct {
	db *sql.DB
}

func NewRunSQLite(db *sql.DB) *RunSQLite { return &RunSQLite{db: db} }

var _ RunRepo = (*RunSQLite)(nil)

const (
	defaultRunListLimit = 50

	insertRunSQL = `
		INSERT INTO reflow_runs (id, started_at, finished_at, outcome, fault_reason, fault_stage, duration_s, peak_c, samples, stages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	selectRunsSQL = `
		SELECT id, started_at, finished_at, outcome, fault_reason, fault_stage, duration_s, peak_c, samples, stages
		FROM reflow_runs ORDER BY started_at DESC LIMIT ?
	`

	selectRunSQL = `
		SELECT id, started_at, finished_at, outcome, fault_reason, fault_stage, duration_s, peak_c, samples, stages
		FROM reflow_runs WHERE id = ?
	`
)

// Save records a finished run. Saving the same run twice keeps the first row.
func (r *RunSQLite) Save(ctx context.Context, s models.RunSummary) error {
	stages, err := json.Marshal(s.Stages)
	if err != nil {
		return fmt.Errorf("encode stages of run %s: %w", s.RunID, err)
	}

	_, err = r.db.ExecContext(ctx, insertRunSQL,
		s.RunID,
		s.StartedAt.UTC(),
		s.FinishedAt.UTC(),
		s.Outcome,
		nullable(s.FaultReason),
		nullable(s.FaultStage),
		s.DurationSeconds,
		s.PeakC,
		s.Samples,
		string(stages),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", s.RunID, err)
	}
	return nil
}

// List returns the most recent runs first.
func (r *RunSQLite) List(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	rows, err := r.db.QueryContext(ctx, selectRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.RunSummary, 0, limit)
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Get returns one run, or (nil, nil) if it is unknown.
func (r *RunSQLite) Get(ctx context.Context, runID string) (*models.RunSummary, error) {
	s, err := scanRun(r.db.QueryRowContext(ctx, selectRunSQL, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.RunSummary, error) {
	var (
		s           models.RunSummary
		faultReason sql.NullString
		faultStage  sql.NullString
		stages      string
	)
	if err := row.Scan(
		&s.RunID,
		&s.StartedAt,
		&s.FinishedAt,
		&s.Outcome,
		&faultReason,
		&faultStage,
		&s.DurationSeconds,
		&s.PeakC,
		&s.Samples,
		&stages,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scan run: %w", err)
	}
	s.StartedAt = s.StartedAt.UTC()
	s.FinishedAt = s.FinishedAt.UTC()
	s.FaultReason = faultReason.String
	s.FaultStage = faultStage.String

	if stages != "" {
		if err := json.Unmarshal([]byte(stages), &s.Stages); err != nil {
			return s, fmt.Errorf("decode stages of run %s: %w", s.RunID, err)
		}
	}
	return s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
