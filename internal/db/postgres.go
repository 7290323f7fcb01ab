// Package db persists join-run audit records and shadow-mode divergence
// reports (spec.md's confidentiality model forbids persisting anything
// about intermediate join shape, so only public sizes, status, an error
// message and timestamps are ever written here).
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for join-run audit log")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Join-run audit schema initialized")
	return nil
}

// JoinRun is one row of the join_runs audit table: everything that is
// public about a submitted join (its id, the tree's node count, the
// result's row count, status, timestamps) and nothing about tuple content
// or intermediate multiplicities.
type JoinRun struct {
	ID           string     `json:"id"`
	SnapshotID   int64      `json:"snapshotId"`
	Status       string     `json:"status"`
	NodeCount    int        `json:"nodeCount"`
	RowCount     int        `json:"rowCount"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	SubmittedAt  time.Time  `json:"submittedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// SaveJoinRun upserts run by id: callers insert it in "running" status
// before evaluation starts, then call it again with the final status once
// Evaluate returns, so a crash mid-evaluation leaves a "running" row
// behind rather than a silently missing one.
func (s *PostgresStore) SaveJoinRun(ctx context.Context, run JoinRun) error {
	sql := `
		INSERT INTO join_runs (id, snapshot_id, status, node_count, row_count, error_message, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    row_count = EXCLUDED.row_count,
		    error_message = EXCLUDED.error_message,
		    completed_at = EXCLUDED.completed_at;
	`
	_, err := s.pool.Exec(ctx, sql,
		run.ID, run.SnapshotID, run.Status, run.NodeCount, run.RowCount,
		nullIfEmpty(run.ErrorMessage), run.SubmittedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save join run: %v", err)
	}
	return nil
}

// ShadowDivergence mirrors shadow.Result for persistence; internal/shadow
// depends on this shape via ShadowRunner.persistResult talking to the same
// pool directly, so this type exists for the API layer's own read path.
type ShadowDivergence struct {
	RunID         string    `json:"runId"`
	SnapshotID    int64     `json:"snapshotId"`
	Matched       int       `json:"matched"`
	OnlyOblivious int       `json:"onlyOblivious"`
	OnlyReference int       `json:"onlyReference"`
	Similarity    float64   `json:"similarity"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GetShadowDivergence fetches the shadow comparison recorded for runID, if
// any.
func (s *PostgresStore) GetShadowDivergence(ctx context.Context, runID string) (*ShadowDivergence, error) {
	sql := `SELECT run_id, snapshot_id, matched, only_oblivious, only_reference, similarity, created_at
		FROM shadow_results WHERE run_id = $1`
	row := s.pool.QueryRow(ctx, sql, runID)
	var d ShadowDivergence
	if err := row.Scan(&d.RunID, &d.SnapshotID, &d.Matched, &d.OnlyOblivious, &d.OnlyReference, &d.Similarity, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetJoinRun fetches a single run by id.
func (s *PostgresStore) GetJoinRun(ctx context.Context, id string) (*JoinRun, error) {
	sql := `SELECT id, snapshot_id, status, node_count, row_count, COALESCE(error_message, ''), submitted_at, completed_at
		FROM join_runs WHERE id = $1`
	row := s.pool.QueryRow(ctx, sql, id)
	var run JoinRun
	if err := row.Scan(&run.ID, &run.SnapshotID, &run.Status, &run.NodeCount, &run.RowCount, &run.ErrorMessage, &run.SubmittedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRecentRuns returns the most recently submitted join runs, newest
// first, capped at limit.
func (s *PostgresStore) GetRecentRuns(ctx context.Context, limit int) ([]JoinRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	sql := `SELECT id, snapshot_id, status, node_count, row_count, COALESCE(error_message, ''), submitted_at, completed_at
		FROM join_runs ORDER BY submitted_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []JoinRun
	for rows.Next() {
		var run JoinRun
		if err := rows.Scan(&run.ID, &run.SnapshotID, &run.Status, &run.NodeCount, &run.RowCount, &run.ErrorMessage, &run.SubmittedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if runs == nil {
		runs = []JoinRun{}
	}
	return runs, nil
}

// GetPool exposes the connection pool for the shadow runner, which writes
// to shadow_results through the same pool rather than through PostgresStore.
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
