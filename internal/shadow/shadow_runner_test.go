package shadow

import (
	"context"
	"testing"

	"github.com/rawblock/oblivious-band-join/internal/engine"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

func twoTableEquijoinTree(t *testing.T) *jointree.Tree {
	t.Helper()
	a := tuple.NewTableFromRows("A", nil, []tuple.Tuple{row(1, 0), row(2, 1), row(2, 2), row(3, 3)})
	b := tuple.NewTableFromRows("B", nil, []tuple.Tuple{row(2, 0), row(2, 1), row(4, 2)})

	tree := jointree.New()
	if _, err := tree.AddRoot(a); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}
	if _, err := tree.AddChild(tree.Root(), b, equiConstraint()); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	return tree
}

// TestRunShadowAnalysisAgreesOnEquijoin checks that the oblivious engine and
// the reference join produce identical multisets for a plain equijoin, with
// no pool configured so persistence is skipped.
func TestRunShadowAnalysisAgreesOnEquijoin(t *testing.T) {
	eng, err := engine.New(engine.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	sr := NewShadowRunner(nil, 1, eng)

	result, err := sr.RunShadowAnalysis(context.Background(), "run-1", twoTableEquijoinTree(t))
	if err != nil {
		t.Fatalf("RunShadowAnalysis: %v", err)
	}
	if result.OnlyOblivious != 0 || result.OnlyReference != 0 {
		t.Fatalf("expected no divergence, got only_oblivious=%d only_reference=%d", result.OnlyOblivious, result.OnlyReference)
	}
	if result.Matched != 4 {
		t.Fatalf("expected 4 matched rows, got %d", result.Matched)
	}
	if result.Similarity != 1.0 {
		t.Fatalf("expected similarity 1.0, got %f", result.Similarity)
	}
}

// TestRunShadowAnalysisPropagatesEngineError checks that a failing engine
// evaluation is surfaced rather than silently compared against an empty
// oblivious result.
func TestRunShadowAnalysisPropagatesEngineError(t *testing.T) {
	eng, err := engine.New(engine.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	sr := NewShadowRunner(nil, 1, eng)

	if _, err := sr.RunShadowAnalysis(context.Background(), "run-2", jointree.New()); err == nil {
		t.Fatalf("expected error for an empty join tree")
	}
}
