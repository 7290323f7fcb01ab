package extsort

import (
	"math/rand"
	"testing"

	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

type noopCollaborator struct{}

func (noopCollaborator) Encrypt(*tuple.Tuple) error { return nil }
func (noopCollaborator) Decrypt(*tuple.Tuple) error { return nil }

func isSortedByJoinAttr(rows []tuple.Tuple) bool {
	for i := 1; i < len(rows); i++ {
		if rows[i-1].JoinAttr > rows[i].JoinAttr {
			return false
		}
	}
	return true
}

// TestMergeStateMergesSortedRuns checks Init/Process/Cleanup against a
// handful of pre-sorted runs of uneven length, including a source refilled
// in more than one buffer's worth.
func TestMergeStateMergesSortedRuns(t *testing.T) {
	runA := []tuple.Tuple{{JoinAttr: 1}, {JoinAttr: 4}, {JoinAttr: 7}, {JoinAttr: 10}, {JoinAttr: 13}}
	runB := []tuple.Tuple{{JoinAttr: 2}, {JoinAttr: 3}}
	runC := []tuple.Tuple{{JoinAttr: 0}, {JoinAttr: 5}, {JoinAttr: 6}, {JoinAttr: 20}}

	ms, err := Init(tuple.KindJoinAttr, []RunSource{sliceSource(runA), sliceSource(runB), sliceSource(runC)}, 2)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ms.Cleanup()

	total := len(runA) + len(runB) + len(runC)
	out, err := drainAll(ms, total)
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if len(out) != total {
		t.Fatalf("expected %d merged rows, got %d", total, len(out))
	}
	if !isSortedByJoinAttr(out) {
		t.Fatalf("merged output not sorted: %+v", out)
	}
}

// TestInitRejectsTooManySources checks the KMax fan-in bound is enforced.
func TestInitRejectsTooManySources(t *testing.T) {
	sources := make([]RunSource, KMax+1)
	for i := range sources {
		sources[i] = sliceSource(nil)
	}
	if _, err := Init(tuple.KindJoinAttr, sources, 4); err == nil {
		t.Fatalf("expected error for %d sources (KMax=%d)", len(sources), KMax)
	}
}

// TestSortLargeTableMatchesDirectSort checks extsort.Sort, forced through
// the multi-run path with a small batchCapacity, against a reference
// sorted copy of the same random input.
func TestSortLargeTableMatchesDirectSort(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	rng := rand.New(rand.NewSource(1))
	n := 137
	rows := make([]tuple.Tuple, n)
	for i := range rows {
		rows[i] = tuple.Tuple{JoinAttr: int64(rng.Intn(1000)), OriginalIndex: int64(i)}
	}
	tbl := tuple.NewTableFromRows("t", nil, append([]tuple.Tuple(nil), rows...))

	if err := Sort(d, tbl, tuple.KindJoinAttr, 16); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if tbl.Len() != n {
		t.Fatalf("expected %d rows after sort, got %d", n, tbl.Len())
	}
	if !isSortedByJoinAttr(tbl.Rows()) {
		t.Fatalf("table not sorted after extsort.Sort")
	}

	seen := make(map[int64]int)
	for _, r := range tbl.Rows() {
		seen[r.OriginalIndex]++
	}
	for i := 0; i < n; i++ {
		if seen[int64(i)] != 1 {
			t.Fatalf("original_index %d appeared %d times, want 1 (sort must not drop/duplicate rows)", i, seen[int64(i)])
		}
	}
}

// TestSortSmallTableDelegatesDirectly checks the no-merge fast path.
func TestSortSmallTableDelegatesDirectly(t *testing.T) {
	d := dispatch.New(noopCollaborator{})
	tbl := tuple.NewTableFromRows("t", nil, []tuple.Tuple{{JoinAttr: 3}, {JoinAttr: 1}, {JoinAttr: 2}})
	if err := Sort(d, tbl, tuple.KindJoinAttr, 64); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if !isSortedByJoinAttr(tbl.Rows()) {
		t.Fatalf("table not sorted: %+v", tbl.Rows())
	}
}

// TestMergeAllWithManyRuns exercises the multi-round fan-in when the
// number of runs exceeds KMax.
func TestMergeAllWithManyRuns(t *testing.T) {
	var runs [][]tuple.Tuple
	for i := 0; i < KMax*3+2; i++ {
		runs = append(runs, []tuple.Tuple{{JoinAttr: int64(i)}})
	}
	merged, err := mergeAll(tuple.KindJoinAttr, runs, 4)
	if err != nil {
		t.Fatalf("mergeAll: %v", err)
	}
	if len(merged) != len(runs) {
		t.Fatalf("expected %d rows, got %d", len(runs), len(merged))
	}
	if !isSortedByJoinAttr(merged) {
		t.Fatalf("mergeAll output not sorted")
	}
}
