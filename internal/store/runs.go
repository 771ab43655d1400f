package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID           string
	Fingerprint  string
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   time.Time
	EventRows    int64
	ResolvedRows int64
	ErrorMessage string
}

// Duration returns how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const runColumns = "id, fingerprint, status, started_at, finished_at, event_rows, resolved_rows, error_message"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run        Run
		status     string
		startedRaw sql.NullString
		finished   sql.NullString
		errMessage sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Fingerprint,
		&status,
		&startedRaw,
		&finished,
		&run.EventRows,
		&run.ResolvedRows,
		&errMessage,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finished)
	run.ErrorMessage = errMessage.String
	return &run, nil
}

// BeginRun records a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, id, fingerprint string) (*Run, error) {
	if id == "" {
		return nil, errors.New("run id is required")
	}
	now := time.Now().UTC()
	if err := s.exec(ctx,
		"INSERT INTO runs (id, fingerprint, status, started_at) VALUES (?, ?, ?, ?)",
		id, fingerprint, string(RunRunning), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{ID: id, Fingerprint: fingerprint, Status: RunRunning, StartedAt: now}, nil
}

// FinishRun records the outcome of a run. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, id string, eventRows, resolvedRows int64, runErr error) error {
	status := RunCompleted
	var message any
	if runErr != nil {
		status = RunFailed
		message = runErr.Error()
	}
	if err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, event_rows = ?, resolved_rows = ?, error_message = ?
		 WHERE id = ?`,
		string(status), formatTime(time.Now()), eventRows, resolvedRows, message, id,
	); err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	return nil
}

// GetRun returns a run by id, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// AbandonRunning marks runs left in the running state by a crashed process
// as failed. It returns how many runs were updated.
func (s *Store) AbandonRunning(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE status = ?",
			string(RunFailed), formatTime(time.Now()), "interrupted", string(RunRunning),
		)
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("abandon running runs: %w", err)
	}
	return res.RowsAffected()
}
