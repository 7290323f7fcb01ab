package shadow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/oblivious-band-join/internal/engine"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
)

// ShadowRunner runs every join twice — once through the oblivious engine,
// once through the plain ReferenceJoin — and reports whenever they disagree.
// No phase1-4 change reaches production until its shadow runs agree with
// the reference join across an observation window.
type ShadowRunner struct {
	pool       *pgxpool.Pool
	snapshotID int64
	eng        *engine.Engine
	eval       *Evaluator
}

// Result captures one join run's divergence between the oblivious engine and
// the reference join.
type Result struct {
	RunID         string    `json:"runId"`
	SnapshotID    int64     `json:"snapshotId"`
	Matched       int       `json:"matched"`
	OnlyOblivious int       `json:"onlyOblivious"`
	OnlyReference int       `json:"onlyReference"`
	Similarity    float64   `json:"similarity"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewShadowRunner creates a runner comparing eng's output against the
// reference join for every tree it is given.
func NewShadowRunner(pool *pgxpool.Pool, snapshotID int64, eng *engine.Engine) *ShadowRunner {
	return &ShadowRunner{
		pool:       pool,
		snapshotID: snapshotID,
		eng:        eng,
		eval:       NewEvaluator(),
	}
}

// RunShadowAnalysis evaluates tree through both the oblivious engine and the
// reference join, and persists the comparison to the shadow_results table.
func (sr *ShadowRunner) RunShadowAnalysis(ctx context.Context, runID string, tree *jointree.Tree) (*Result, error) {
	obliviousResult, err := sr.eng.Evaluate(tree)
	if err != nil {
		return nil, fmt.Errorf("shadow: oblivious evaluate: %w", err)
	}
	referenceResult, err := ReferenceJoin(tree)
	if err != nil {
		return nil, fmt.Errorf("shadow: reference join: %w", err)
	}

	div := sr.eval.Compare(obliviousResult, referenceResult)
	result := &Result{
		RunID:         runID,
		SnapshotID:    sr.snapshotID,
		Matched:       div.Matched,
		OnlyOblivious: len(div.OnlyInOblivious),
		OnlyReference: len(div.OnlyInReference),
		Similarity:    sr.eval.JaccardSimilarity(div),
		CreatedAt:     time.Now(),
	}

	// Log divergences for monitoring.
	if div.Diverged() {
		log.Printf("[shadow] DIVERGENCE on run %s: matched=%d only_oblivious=%d only_reference=%d similarity=%.4f",
			runID, result.Matched, result.OnlyOblivious, result.OnlyReference, result.Similarity)
	}

	// Persist to shadow_results table.
	if sr.pool != nil {
		if err := sr.persistResult(ctx, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

// persistResult writes the shadow comparison to the database.
func (sr *ShadowRunner) persistResult(ctx context.Context, result *Result) error {
	sql := `INSERT INTO shadow_results
		(run_id, snapshot_id, matched, only_oblivious, only_reference, similarity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := sr.pool.Exec(ctx, sql,
		result.RunID,
		result.SnapshotID,
		result.Matched,
		result.OnlyOblivious,
		result.OnlyReference,
		result.Similarity,
		result.CreatedAt,
	)
	return err
}

// GenerateDriftReport computes the divergence rate between oblivious and
// reference runs over all shadow results for this snapshot.
func (sr *ShadowRunner) GenerateDriftReport(ctx context.Context) (totalRuns int, divergences int, avgSimilarity float64, err error) {
	sql := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE only_oblivious != 0 OR only_reference != 0) AS divergences,
		COALESCE(AVG(similarity), 1) AS avg_similarity
	FROM shadow_results WHERE snapshot_id = $1`

	row := sr.pool.QueryRow(ctx, sql, sr.snapshotID)
	err = row.Scan(&totalRuns, &divergences, &avgSimilarity)
	return
}
