// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the slice of pgxpool.Pool the stores need; pgxmock satisfies
// it for tests.
type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
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

// snapshotTables maps each logical namespace onto its table. Each stage
// writes its own table; rows are versioned by run_id so a new run never
// touches a previous run's snapshot.
var snapshotTables = map[pipeline.Namespace]string{
	pipeline.NamespaceRaw:       "raw_articles",
	pipeline.NamespaceProcessed: "processed_articles",
	pipeline.NamespaceFinal:     "final_articles",
}

// SnapshotStore writes stage output snapshots into Postgres. It implements
// pipeline.SnapshotStore.
type SnapshotStore struct {
	pool dbPool
}

// NewSnapshotStore wraps an existing pool.
func NewSnapshotStore(pool dbPool) (*SnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SnapshotStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// WriteSnapshot inserts every article of a run inside one transaction, so
// a cancelled or failed run leaves nothing visible to downstream readers.
// It assumes a table schema like:
//
//	CREATE TABLE raw_articles (
//		seq BIGSERIAL PRIMARY KEY,
//		run_id UUID NOT NULL,
//		article_id TEXT NOT NULL,
//		title TEXT,
//		url TEXT,
//		body TEXT,
//		published_at TEXT,
//		published TIMESTAMPTZ,
//		source_name TEXT,
//		source_uri TEXT,
//		fetched_at TIMESTAMPTZ NOT NULL
//	);
//
// (same shape for processed_articles and final_articles); creating it is
// the store's responsibility, not the pipeline's.
func (s *SnapshotStore) WriteSnapshot(ctx context.Context, ns pipeline.Namespace, runID string, articles []pipeline.Article) error {
	table, ok := snapshotTables[ns]
	if !ok {
		return fmt.Errorf("unknown snapshot namespace %q", ns)
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	article_id,
	title,
	url,
	body,
	published_at,
	published,
	source_name,
	source_uri,
	fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, table)

	for _, a := range articles {
		var published *time.Time
		if !a.Published.IsZero() {
			published = &a.Published
		}
		if _, err := tx.Exec(ctx, query,
			runID,
			a.ID,
			a.Title,
			a.URL,
			a.Body,
			a.PublishedAt,
			published,
			a.SourceName,
			a.SourceURI,
			a.FetchedAt,
		); err != nil {
			return fmt.Errorf("insert %s row: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// ReadSnapshot loads the snapshot a run wrote into a namespace, preserving
// insertion order.
func (s *SnapshotStore) ReadSnapshot(ctx context.Context, ns pipeline.Namespace, runID string) ([]pipeline.Article, error) {
	table, ok := snapshotTables[ns]
	if !ok {
		return nil, fmt.Errorf("unknown snapshot namespace %q", ns)
	}

	query := fmt.Sprintf(`
SELECT article_id, title, url, body, published_at, published, source_name, source_uri, fetched_at
FROM %s
WHERE run_id = $1
ORDER BY seq`, table)

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query %s snapshot: %w", table, err)
	}
	defer rows.Close()

	var out []pipeline.Article
	for rows.Next() {
		var a pipeline.Article
		var published *time.Time
		if err := rows.Scan(
			&a.ID,
			&a.Title,
			&a.URL,
			&a.Body,
			&a.PublishedAt,
			&published,
			&a.SourceName,
			&a.SourceURI,
			&a.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		if published != nil {
			a.Published = *published
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return out, nil
}
