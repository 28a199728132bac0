package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// RunStore records stage executions in Postgres. It implements
// pipeline.RunStore over a pipeline_runs table:
//
//	CREATE TABLE pipeline_runs (
//		id UUID PRIMARY KEY,
//		stage TEXT NOT NULL,
//		status TEXT NOT NULL,
//		started_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ,
//		error_text TEXT,
//		article_count INT NOT NULL DEFAULT 0,
//		removed_count INT NOT NULL DEFAULT 0,
//		cursor_ts TIMESTAMPTZ,
//		metadata JSONB
//	);
type RunStore struct {
	pool dbPool
}

// NewRunStore wraps an existing pool.
func NewRunStore(pool dbPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun inserts a new run row in the running state.
func (s *RunStore) StartRun(ctx context.Context, run pipeline.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := `
		INSERT INTO pipeline_runs (id, stage, status, started_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, run.ID, run.Stage, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun records the terminal state, counts, cursor, and metadata of
// a run.
func (s *RunStore) CompleteRun(ctx context.Context, run pipeline.Run) error {
	metadataJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("marshal run metadata: %w", err)
	}
	query := `
		UPDATE pipeline_runs
		SET status = $1,
			finished_at = $2,
			error_text = $3,
			article_count = $4,
			removed_count = $5,
			cursor_ts = $6,
			metadata = $7
		WHERE id = $8
	`
	tag, err := s.pool.Exec(ctx, query,
		run.Status,
		run.FinishedAt,
		run.ErrorText,
		run.ArticleCount,
		run.RemovedCount,
		run.Cursor,
		metadataJSON,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrRunNotFound
	}
	return nil
}

const runColumns = `id, stage, status, started_at, finished_at, error_text, article_count, removed_count, cursor_ts, metadata`

// GetRun retrieves a single run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (pipeline.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.Run{}, pipeline.ErrRunNotFound
		}
		return pipeline.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs started after the given time, newest first, with
// optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *pipeline.RunStatus, after time.Time, limit int) ([]pipeline.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE ($1::text IS NULL OR status = $1)
		  AND started_at > $2
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, status, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []pipeline.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recent run of a stage with the given status.
// The fetch cursor lookup rides on this.
func (s *RunStore) LastRun(ctx context.Context, stage pipeline.StageName, status pipeline.RunStatus) (pipeline.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE stage = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1
	`
	run, err := scanRun(s.pool.QueryRow(ctx, query, stage, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.Run{}, pipeline.ErrRunNotFound
		}
		return pipeline.Run{}, fmt.Errorf("last run: %w", err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (pipeline.Run, error) {
	var run pipeline.Run
	var errText *string
	var metadataJSON []byte
	if err := row.Scan(
		&run.ID,
		&run.Stage,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&errText,
		&run.ArticleCount,
		&run.RemovedCount,
		&run.Cursor,
		&metadataJSON,
	); err != nil {
		return pipeline.Run{}, err
	}
	if errText != nil {
		run.ErrorText = *errText
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &run.Metadata); err != nil {
			return pipeline.Run{}, fmt.Errorf("unmarshal run metadata: %w", err)
		}
	}
	return run, nil
}
