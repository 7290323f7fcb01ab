package phase2

import (
	"testing"

	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

type noopCollaborator struct{}

func (noopCollaborator) Encrypt(*tuple.Tuple) error { return nil }
func (noopCollaborator) Decrypt(*tuple.Tuple) error { return nil }

// TestRootFinalMultSeededFromLocal checks the root's final_mult is copied
// from local_mult before any propagation (spec §4.5's base case).
func TestRootFinalMultSeededFromLocal(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	tr := jointree.New()
	root := tuple.NewTableFromRows("root", nil, []tuple.Tuple{
		{JoinAttr: 1, LocalMult: 3},
		{JoinAttr: 2, LocalMult: 5},
	})
	tr.AddRoot(root)

	if err := Run(d, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if root.At(0).FinalMult != 3 || root.At(1).FinalMult != 5 {
		t.Fatalf("root final_mult should equal local_mult, got %+v", root.Rows())
	}
}

// TestPropagateEqualityJoin exercises a single equality edge with a root
// that has already absorbed this child's contribution in phase 1 (its
// local_mult is the sum of the matching children's local_mult, 2+3=5, as
// phase1.computeLocalMultiplicities would have left it). Since the root has
// no other children, dividing its final_mult by that same local_weight
// recovers a foreign multiplicity of exactly 1, so each child row's own
// final_mult should come back out equal to its local_mult.
func TestPropagateEqualityJoin(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	tr := jointree.New()

	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{
		{JoinAttr: 10, LocalMult: 5, OriginalIndex: 0},
	})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		{JoinAttr: 10, LocalMult: 2, OriginalIndex: 0},
		{JoinAttr: 10, LocalMult: 3, OriginalIndex: 1},
	})

	rootID, _ := tr.AddRoot(parent)
	_, err := tr.AddChild(rootID, child, jointree.Constraint{
		DeltaStart: 0, EqStart: tuple.EqEQ,
		DeltaEnd: 0, EqEnd: tuple.EqEQ,
	})
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}

	if err := Run(d, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if child.At(0).FinalMult != 2 {
		t.Fatalf("child[0] final_mult = %d, want 2", child.At(0).FinalMult)
	}
	if child.At(1).FinalMult != 3 {
		t.Fatalf("child[1] final_mult = %d, want 3", child.At(1).FinalMult)
	}
	if parent.At(0).FinalMult != 5 {
		t.Fatalf("parent final_mult should stay at its seeded local_mult, got %d", parent.At(0).FinalMult)
	}
}

// TestPropagateBandConstraint exercises a genuine band predicate (DeltaEnd
// != 0, both endpoints exclusive), the same (10, 15) open interval
// shadow.ReferenceJoin is checked against: only the child row strictly
// inside the band should recover a nonzero final_mult.
func TestPropagateBandConstraint(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	tr := jointree.New()

	// local_mult=1 mirrors what phase1 would have left here: the parent's
	// single row matches exactly one child row (jk=12) in this band, so its
	// local_mult going into phase2 is 1.
	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{
		{JoinAttr: 10, LocalMult: 1, OriginalIndex: 0},
	})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		{JoinAttr: 10, LocalMult: 1, OriginalIndex: 0}, // excluded: equals lower bound, exclusive
		{JoinAttr: 12, LocalMult: 1, OriginalIndex: 1}, // included: strictly inside (10, 15)
		{JoinAttr: 15, LocalMult: 1, OriginalIndex: 2}, // excluded: equals upper bound, exclusive
		{JoinAttr: 20, LocalMult: 1, OriginalIndex: 3}, // excluded: outside the band entirely
	})

	rootID, _ := tr.AddRoot(parent)
	_, err := tr.AddChild(rootID, child, jointree.Constraint{
		DeltaStart: 0, EqStart: tuple.EqNEQ,
		DeltaEnd: 5, EqEnd: tuple.EqNEQ,
	})
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}

	if err := Run(d, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int64{0, 1, 0, 0}
	for i, w := range want {
		if got := child.At(i).FinalMult; got != w {
			t.Fatalf("child[%d] (jk=%d) final_mult = %d, want %d", i, child.At(i).JoinAttr, got, w)
		}
	}
}

// TestPropagateHalfOpenMixedEquality mixes equality types across the two
// endpoints (closed lower bound via EqEQ, open upper bound via EqNEQ),
// giving the half-open interval [10, 15).
func TestPropagateHalfOpenMixedEquality(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	tr := jointree.New()

	// Two child rows (jk=10 and jk=12) fall in [10, 15), so the parent's
	// local_mult going into phase2 is 2.
	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{
		{JoinAttr: 10, LocalMult: 2, OriginalIndex: 0},
	})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		{JoinAttr: 10, LocalMult: 1, OriginalIndex: 0}, // included: equals the closed lower bound
		{JoinAttr: 12, LocalMult: 1, OriginalIndex: 1}, // included: strictly inside
		{JoinAttr: 15, LocalMult: 1, OriginalIndex: 2}, // excluded: equals the open upper bound
	})

	rootID, _ := tr.AddRoot(parent)
	_, err := tr.AddChild(rootID, child, jointree.Constraint{
		DeltaStart: 0, EqStart: tuple.EqEQ,
		DeltaEnd: 5, EqEnd: tuple.EqNEQ,
	})
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}

	if err := Run(d, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if child.At(0).FinalMult != 1 {
		t.Fatalf("child[0] (jk=10) final_mult = %d, want 1", child.At(0).FinalMult)
	}
	if child.At(1).FinalMult != 1 {
		t.Fatalf("child[1] (jk=12) final_mult = %d, want 1", child.At(1).FinalMult)
	}
	if child.At(2).FinalMult != 0 {
		t.Fatalf("child[2] (jk=15) final_mult = %d, want 0 (excluded by the open upper bound)", child.At(2).FinalMult)
	}
}

// TestPropagateNoMatch checks a child row with no matching parent row ends
// up with final_mult 0 (foreign_mult 0), since final_mult must be zero for
// any row that cannot appear in the complete join result.
func TestPropagateNoMatch(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	tr := jointree.New()

	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{
		{JoinAttr: 10, LocalMult: 1, OriginalIndex: 0},
	})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		{JoinAttr: 999, LocalMult: 4, OriginalIndex: 0},
	})

	rootID, _ := tr.AddRoot(parent)
	tr.AddChild(rootID, child, jointree.Constraint{
		DeltaStart: 0, EqStart: tuple.EqEQ,
		DeltaEnd: 0, EqEnd: tuple.EqEQ,
	})

	if err := Run(d, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if child.At(0).FinalMult != 0 {
		t.Fatalf("unmatched child row should have final_mult 0, got %d", child.At(0).FinalMult)
	}
}
