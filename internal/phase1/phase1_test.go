package phase1

import (
	"testing"

	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

type noopCollaborator struct{}

func (noopCollaborator) Encrypt(*tuple.Tuple) error { return nil }
func (noopCollaborator) Decrypt(*tuple.Tuple) error { return nil }

func row(joinAttr, localMult int64) tuple.Tuple {
	return tuple.Tuple{JoinAttr: joinAttr, LocalMult: localMult}
}

// TestComputeLocalMultiplicitiesEquijoin is the degenerate DeltaStart=0,
// DeltaEnd=0, EqEQ/EqEQ case: the parent's local_mult of 1 is multiplied by
// the sum of local_mult of every child row sharing the parent's join_attr
// exactly.
func TestComputeLocalMultiplicitiesEquijoin(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{row(10, 1)})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{row(10, 2), row(10, 3), row(99, 4)})

	c := jointree.Constraint{DeltaStart: 0, EqStart: tuple.EqEQ, DeltaEnd: 0, EqEnd: tuple.EqEQ}
	if err := computeLocalMultiplicities(d, parent, child, c); err != nil {
		t.Fatalf("computeLocalMultiplicities: %v", err)
	}
	if got := parent.At(0).LocalMult; got != 5 {
		t.Fatalf("parent local_mult = %d, want 5 (2+3, excluding the jk=99 row)", got)
	}
}

// TestComputeLocalMultiplicitiesOpenBand exercises a genuine band predicate
// (DeltaEnd != 0) with both endpoints exclusive (EqNEQ), the same interval
// (10, 15) as shadow's TestReferenceJoinBandConstraint so the two packages'
// semantics can be checked against the same fixture.
func TestComputeLocalMultiplicitiesOpenBand(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{row(10, 1)})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		row(10, 1), // excluded: equals lower bound, which is exclusive
		row(12, 1), // included: strictly inside (10, 15)
		row(15, 1), // excluded: equals upper bound, which is exclusive
		row(20, 1), // excluded: outside the band entirely
	})

	c := jointree.Constraint{DeltaStart: 0, EqStart: tuple.EqNEQ, DeltaEnd: 5, EqEnd: tuple.EqNEQ}
	if err := computeLocalMultiplicities(d, parent, child, c); err != nil {
		t.Fatalf("computeLocalMultiplicities: %v", err)
	}
	if got := parent.At(0).LocalMult; got != 1 {
		t.Fatalf("parent local_mult = %d, want 1 (only jk=12 falls in the open band)", got)
	}
}

// TestComputeLocalMultiplicitiesHalfOpenBand mixes equality types across the
// two endpoints: DeltaStart is closed (EqEQ) and DeltaEnd is open (EqNEQ),
// giving the half-open interval [10, 15). Matching rows' local_mult values
// differ so the sum, not just the count, is checked.
func TestComputeLocalMultiplicitiesHalfOpenBand(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{row(10, 1)})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		row(10, 2), // included: equals the closed lower bound
		row(12, 3), // included: strictly inside
		row(15, 4), // excluded: equals the open upper bound
		row(20, 5), // excluded: outside the band entirely
	})

	c := jointree.Constraint{DeltaStart: 0, EqStart: tuple.EqEQ, DeltaEnd: 5, EqEnd: tuple.EqNEQ}
	if err := computeLocalMultiplicities(d, parent, child, c); err != nil {
		t.Fatalf("computeLocalMultiplicities: %v", err)
	}
	if got := parent.At(0).LocalMult; got != 5 {
		t.Fatalf("parent local_mult = %d, want 5 (2+3, jk=10 and jk=12)", got)
	}
}

// TestComputeLocalMultiplicitiesNegativeDelta checks a band shifted below the
// parent's join_attr (DeltaStart/DeltaEnd both negative), so the interval
// arithmetic is exercised in both directions, not just upward.
func TestComputeLocalMultiplicitiesNegativeDelta(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{row(100, 1)})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		row(94, 1),  // excluded: below [95, 98]
		row(95, 2),  // included: lower bound
		row(98, 3),  // included: upper bound
		row(99, 4),  // excluded: above [95, 98]
	})

	c := jointree.Constraint{DeltaStart: -5, EqStart: tuple.EqEQ, DeltaEnd: -2, EqEnd: tuple.EqEQ}
	if err := computeLocalMultiplicities(d, parent, child, c); err != nil {
		t.Fatalf("computeLocalMultiplicities: %v", err)
	}
	if got := parent.At(0).LocalMult; got != 5 {
		t.Fatalf("parent local_mult = %d, want 5 (2+3, jk=95 and jk=98)", got)
	}
}

// TestRunEndToEndBandJoin drives Run over a two-node tree through the full
// leaf-seeding + post-order walk, rather than calling
// computeLocalMultiplicities directly, so the leaf initialization
// (KindSetLocalMultOne) and the traversal itself are both covered for a
// non-degenerate band constraint.
func TestRunEndToEndBandJoin(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	tr := jointree.New()

	parent := tuple.NewTableFromRows("parent", nil, []tuple.Tuple{{JoinAttr: 10}})
	child := tuple.NewTableFromRows("child", nil, []tuple.Tuple{
		{JoinAttr: 10}, // excluded
		{JoinAttr: 12}, // included
		{JoinAttr: 13}, // included
		{JoinAttr: 15}, // excluded
	})

	rootID, err := tr.AddRoot(parent)
	if err != nil {
		t.Fatalf("AddRoot: %v", err)
	}
	if _, err := tr.AddChild(rootID, child, jointree.Constraint{
		DeltaStart: 0, EqStart: tuple.EqNEQ,
		DeltaEnd: 5, EqEnd: tuple.EqNEQ,
	}); err != nil {
		t.Fatalf("AddChild: %v", err)
	}

	if err := Run(d, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := parent.At(0).LocalMult; got != 2 {
		t.Fatalf("parent local_mult = %d, want 2 (jk=12 and jk=13 each with leaf local_mult 1)", got)
	}
	for i := 0; i < child.Len(); i++ {
		if got := child.At(i).LocalMult; got != 1 {
			t.Fatalf("child[%d] local_mult = %d, want 1 (leaf seeding must not be mutated by the edge walk)", i, got)
		}
	}
}
