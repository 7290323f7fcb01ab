package dispatch

import (
	"testing"

	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

func TestComputeLocalInterval(t *testing.T) {
	start := tuple.Tuple{FieldType: tuple.Start, LocalCumsum: 2}
	end := tuple.Tuple{FieldType: tuple.End, LocalCumsum: 9}
	computeLocalInterval(&start, &end)
	if end.LocalInterval != 7 {
		t.Fatalf("LocalInterval = %d, want 7", end.LocalInterval)
	}
}

func TestComputeLocalIntervalIgnoresNonBoundaryPair(t *testing.T) {
	a := tuple.Tuple{FieldType: tuple.Source, LocalCumsum: 2}
	b := tuple.Tuple{FieldType: tuple.Source, LocalCumsum: 9, LocalInterval: 42}
	computeLocalInterval(&a, &b)
	if b.LocalInterval != 42 {
		t.Fatalf("non start/end pair must leave LocalInterval untouched, got %d", b.LocalInterval)
	}
}

func TestComputeForeignSumAccumulatesWeight(t *testing.T) {
	e1 := tuple.Tuple{LocalWeight: 0, ForeignSum: 0}
	start := tuple.Tuple{FieldType: tuple.Start, LocalMult: 3}
	computeForeignSum(&e1, &start)
	if start.LocalWeight != 3 {
		t.Fatalf("START must add local_mult to weight, got %d", start.LocalWeight)
	}

	source := tuple.Tuple{FieldType: tuple.Source, FinalMult: 9}
	computeForeignSum(&start, &source)
	if source.LocalWeight != 3 {
		t.Fatalf("SOURCE must carry weight forward unchanged, got %d", source.LocalWeight)
	}
	if source.ForeignSum != 3 {
		t.Fatalf("SOURCE foreign_sum = %d, want final_mult/weight = 9/3 = 3", source.ForeignSum)
	}

	end := tuple.Tuple{FieldType: tuple.End, LocalMult: 3}
	computeForeignSum(&source, &end)
	if end.LocalWeight != 0 {
		t.Fatalf("END must subtract local_mult from weight, got %d", end.LocalWeight)
	}
}

func TestComputeForeignSumZeroWeightDoesNotDivideByZero(t *testing.T) {
	e1 := tuple.Tuple{LocalWeight: 0, ForeignSum: 5}
	source := tuple.Tuple{FieldType: tuple.Source, FinalMult: 100}
	computeForeignSum(&e1, &source)
	if source.LocalWeight != 0 {
		t.Fatalf("weight should remain 0 when no boundary seen yet")
	}
	// With weight 0, divisor is substituted with 1, but the spec's design
	// assumes final_mult is 0 whenever weight is 0 in a well-formed tree;
	// here we only check the call doesn't panic and produces a deterministic
	// result via the substitute divisor.
	if source.ForeignSum != e1.ForeignSum+100 {
		t.Fatalf("expected substitute-divisor-of-1 semantics, got foreign_sum=%d", source.ForeignSum)
	}
}

func TestComputeDstIdxPrefixSum(t *testing.T) {
	e1 := tuple.Tuple{DstIdx: 0, FinalMult: 4}
	e2 := tuple.Tuple{}
	computeDstIdx(&e1, &e2)
	if e2.DstIdx != 4 {
		t.Fatalf("DstIdx = %d, want 4", e2.DstIdx)
	}
}

func TestIncrementIndex(t *testing.T) {
	e1 := tuple.Tuple{Index: 7}
	e2 := tuple.Tuple{}
	incrementIndex(&e1, &e2)
	if e2.Index != 8 {
		t.Fatalf("Index = %d, want 8", e2.Index)
	}
}

func TestExpandCopyFillsPaddingFromLeftNeighbor(t *testing.T) {
	e1 := tuple.Tuple{FieldType: tuple.Source, JoinAttr: 5, CopyIndex: 0, Index: 0}
	e2 := tuple.Tuple{FieldType: tuple.DistPadding, Index: 1}
	expandCopy(&e1, &e2)
	if e2.FieldType != tuple.Source || e2.JoinAttr != 5 {
		t.Fatalf("expected e2 to inherit e1's content, got %+v", e2)
	}
	if e2.CopyIndex != 1 {
		t.Fatalf("CopyIndex = %d, want 1", e2.CopyIndex)
	}
	if e2.Index != 1 {
		t.Fatalf("Index must remain the slot's own identity, got %d", e2.Index)
	}
	if e1.CopyIndex != 0 {
		t.Fatalf("expandCopy must not mutate the left operand")
	}
}

func TestExpandCopyLeavesNonPaddingUntouched(t *testing.T) {
	e1 := tuple.Tuple{FieldType: tuple.Source, JoinAttr: 5}
	e2 := tuple.Tuple{FieldType: tuple.Source, JoinAttr: 9, Index: 3}
	expandCopy(&e1, &e2)
	if e2.JoinAttr != 9 {
		t.Fatalf("non-padding e2 must be left alone, got JoinAttr=%d", e2.JoinAttr)
	}
}
