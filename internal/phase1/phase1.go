// Package phase1 implements the bottom-up multiplicity computation (spec
// §4.4): a post-order traversal of the join tree that, for each parent/child
// edge, runs the dual-entry interval technique to set local_mult on the
// parent so it reflects the join of the visited part of the tree.
package phase1

import (
	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Run executes Phase 1 over every node of tree in post-order (spec §4.4).
// Every node's local_mult starts at 1; each child edge then multiplies in
// that child's interval sum, so a leaf keeps 1.
func Run(d *dispatch.Dispatcher, tree *jointree.Tree) error {
	for _, id := range tree.PostOrder() {
		if err := dispatch.BatchedMap(d, tree.Table(id), tuple.KindSetLocalMultOne, [2]int32{}); err != nil {
			return err
		}
		for _, c := range tree.Children(id) {
			if err := computeLocalMultiplicities(d, tree.Table(id), tree.Table(c), tree.Constraint(c)); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildBoundary(d *dispatch.Dispatcher, parent *tuple.Table, delta int64, eq tuple.EqualityType, kind tuple.OpKind) (*tuple.Table, error) {
	rows := append([]tuple.Tuple(nil), parent.Rows()...)
	tbl := tuple.NewTableFromRows("boundary", nil, rows)
	if err := dispatch.BatchedMap(d, tbl, kind, [2]int32{int32(delta), int32(eq)}); err != nil {
		return nil, err
	}
	return tbl, nil
}

// computeLocalMultiplicities runs the eight steps of spec §4.4 for one
// parent/child edge, mutating parent's local_mult in place. child is left
// unchanged.
func computeLocalMultiplicities(d *dispatch.Dispatcher, parent, child *tuple.Table, c jointree.Constraint) error {
	sourceRows := append([]tuple.Tuple(nil), child.Rows()...)
	for i := range sourceRows {
		sourceRows[i].FieldType = tuple.Source
	}

	startTbl, err := buildBoundary(d, parent, c.DeltaStart, c.EqStart, tuple.KindToStart)
	if err != nil {
		return err
	}
	endTbl, err := buildBoundary(d, parent, c.DeltaEnd, c.EqEnd, tuple.KindToEnd)
	if err != nil {
		return err
	}

	combRows := make([]tuple.Tuple, 0, len(sourceRows)+startTbl.Len()+endTbl.Len())
	combRows = append(combRows, sourceRows...)
	combRows = append(combRows, startTbl.Rows()...)
	combRows = append(combRows, endTbl.Rows()...)
	for i := range combRows {
		combRows[i].LocalCumsum = combRows[i].LocalMult
		combRows[i].LocalInterval = 0
	}
	comb := tuple.NewTableFromRows("comb", nil, combRows)

	if err := dispatch.Sort(d, comb, tuple.KindJoinAttr); err != nil {
		return err
	}
	if err := dispatch.BatchedLinearPass(d, comb, tuple.KindComputeLocalSum); err != nil {
		return err
	}
	if err := dispatch.Sort(d, comb, tuple.KindPairwise); err != nil {
		return err
	}
	if err := dispatch.BatchedLinearPass(d, comb, tuple.KindComputeLocalInterval); err != nil {
		return err
	}
	if err := dispatch.Sort(d, comb, tuple.KindEndFirst); err != nil {
		return err
	}

	n := parent.Len()
	if comb.Len() < n {
		return joinerr.New(joinerr.InvariantViolated, "phase1.computeLocalMultiplicities", "combined table shorter than parent after END_FIRST sort: %d < %d", comb.Len(), n)
	}

	combined := make([]tuple.Tuple, 0, 2*n)
	combined = append(combined, comb.Rows()[:n]...)
	combined = append(combined, parent.Rows()...)
	ops := make([]tuple.Op, n)
	for i := 0; i < n; i++ {
		ops[i] = tuple.Op{I: uint32(i), J: uint32(n + i)}
	}
	if err := d.Dispatch(combined, ops, tuple.KindUpdateTargetMultiplicity); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		parent.Set(i, combined[n+i])
	}
	return nil
}
