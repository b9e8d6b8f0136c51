// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobsonar/jobsonar/internal/clock/system"
	"github.com/jobsonar/jobsonar/internal/discovery"
)

// DB is the subset of pgxpool.Pool the stores use. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool shared by the stores.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect builds a pgx pool from the config.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// RunStore persists runs in Postgres. Progress and errors live in jsonb
// columns: they are only ever read and written whole.
type RunStore struct {
	db    DB
	clock discovery.Clock
}

// NewRunStore constructs a RunStore over an existing pool.
func NewRunStore(db DB, clk discovery.Clock) (*RunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clk == nil {
		clk = system.New()
	}
	return &RunStore{db: db, clock: clk}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

const insertRunSQL = `
INSERT INTO runs (
	id, user_id, status, triggered_by, source_ids,
	created_at, progress, errors, error_text
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

// CreateRun inserts a new run row.
func (s *RunStore) CreateRun(ctx context.Context, run discovery.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	sourceIDs, err := json.Marshal(run.SourceIDs)
	if err != nil {
		return fmt.Errorf("marshal source ids: %w", err)
	}
	progress, err := json.Marshal(run.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	runErrs, err := json.Marshal(runErrorsOrEmpty(run.Errors))
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	args := []any{
		run.ID, run.UserID, run.Status, run.TriggeredBy, sourceIDs,
		run.CreatedAt, progress, runErrs, run.ErrorText,
	}
	if _, err := s.db.Exec(ctx, insertRunSQL, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const updateRunStatusSQL = `
UPDATE runs SET
	status = $2,
	error_text = $3,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $4 ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('completed','stopped','failed') AND finished_at IS NULL THEN $4 ELSE finished_at END
WHERE id = $1`

// UpdateRunStatus moves a run to a new status, stamping started_at on the
// transition to running and finished_at on any terminal transition.
func (s *RunStore) UpdateRunStatus(ctx context.Context, runID string, status discovery.RunStatus, errText string) error {
	tag, err := s.db.Exec(ctx, updateRunStatusSQL, runID, status, errText, s.clock.Now())
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return discovery.ErrNotFound
	}
	return nil
}

// UpdateRunProgress replaces the progress snapshot.
func (s *RunStore) UpdateRunProgress(ctx context.Context, runID string, progress discovery.RunProgress) error {
	encoded, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE runs SET progress = $2 WHERE id = $1`, runID, encoded)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return discovery.ErrNotFound
	}
	return nil
}

// AppendRunError appends one per-source failure to the errors array.
func (s *RunStore) AppendRunError(ctx context.Context, runID string, runErr discovery.RunError) error {
	encoded, err := json.Marshal(runErr)
	if err != nil {
		return fmt.Errorf("marshal run error: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE runs SET errors = errors || $2::jsonb WHERE id = $1`, runID, encoded)
	if err != nil {
		return fmt.Errorf("append run error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return discovery.ErrNotFound
	}
	return nil
}

const selectRunSQL = `
SELECT id, user_id, status, triggered_by, source_ids,
	created_at, started_at, finished_at, progress, errors, error_text
FROM runs`

// GetRun loads one run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (discovery.Run, error) {
	row := s.db.QueryRow(ctx, selectRunSQL+` WHERE id = $1`, runID)
	return scanRun(row)
}

// ListRuns returns the caller's runs, newest first. An empty status
// matches all statuses.
func (s *RunStore) ListRuns(ctx context.Context, userID string, status discovery.RunStatus, limit int) ([]discovery.Run, error) {
	query := selectRunSQL + ` WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []discovery.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the caller's most recent run.
func (s *RunStore) LatestRun(ctx context.Context, userID string) (discovery.Run, error) {
	row := s.db.QueryRow(ctx,
		selectRunSQL+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID)
	return scanRun(row)
}

func scanRun(row pgx.Row) (discovery.Run, error) {
	var (
		run       discovery.Run
		sourceIDs []byte
		progress  []byte
		runErrs   []byte
	)
	err := row.Scan(
		&run.ID, &run.UserID, &run.Status, &run.TriggeredBy, &sourceIDs,
		&run.CreatedAt, &run.StartedAt, &run.FinishedAt, &progress, &runErrs, &run.ErrorText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return discovery.Run{}, discovery.ErrNotFound
	}
	if err != nil {
		return discovery.Run{}, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal(sourceIDs, &run.SourceIDs); err != nil {
		return discovery.Run{}, fmt.Errorf("decode source ids: %w", err)
	}
	if err := json.Unmarshal(progress, &run.Progress); err != nil {
		return discovery.Run{}, fmt.Errorf("decode progress: %w", err)
	}
	if err := json.Unmarshal(runErrs, &run.Errors); err != nil {
		return discovery.Run{}, fmt.Errorf("decode errors: %w", err)
	}
	return run, nil
}

func runErrorsOrEmpty(errs []discovery.RunError) []discovery.RunError {
	if errs == nil {
		return []discovery.RunError{}
	}
	return errs
}
