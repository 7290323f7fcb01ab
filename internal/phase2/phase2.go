// Package phase2 implements the top-down final multiplicity propagation
// (spec §4.5): a pre-order traversal of the join tree that, for each
// parent/child edge, recovers the parent's multiplicity outside the child's
// subtree and uses it to set the child's final_mult and foreign_sum.
//
// The combined-table role assignment here is the mirror image of Phase 1's:
// the parent supplies SOURCE rows and the child is transformed into
// START/END boundaries. Phase 1 walks bottom-up asking "how many times does
// the parent match this child's rows", so the child's rows are the ones
// being counted (SOURCE) against parent-derived boundaries. Phase 2 walks
// top-down asking the converse question, "what would the parent's
// multiplicity be without this child's subtree", so it is the parent's rows
// that are being counted (SOURCE) against child-derived boundaries.
package phase2

import (
	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Run executes Phase 2 over every edge of tree in pre-order (spec §4.5): the
// root's final_mult is seeded from its local_mult, then each edge propagates
// a final_mult and foreign_sum down into the child.
func Run(d *dispatch.Dispatcher, tree *jointree.Tree) error {
	if tree.Len() == 0 {
		return nil
	}
	root := tree.Table(tree.Root())
	if err := dispatch.BatchedMap(d, root, tuple.KindInitFinalMultFromLocal, [2]int32{}); err != nil {
		return err
	}
	for _, e := range tree.PreOrderEdges() {
		if err := propagateFinalMultiplicities(d, tree.Table(e.Parent), tree.Table(e.Child), tree.Constraint(e.Child)); err != nil {
			return err
		}
	}
	return nil
}

func buildBoundary(d *dispatch.Dispatcher, child *tuple.Table, delta int64, eq tuple.EqualityType, kind tuple.OpKind) (*tuple.Table, error) {
	rows := append([]tuple.Tuple(nil), child.Rows()...)
	tbl := tuple.NewTableFromRows("boundary", nil, rows)
	if err := dispatch.BatchedMap(d, tbl, kind, [2]int32{int32(delta), int32(eq)}); err != nil {
		return nil, err
	}
	return tbl, nil
}

// propagateFinalMultiplicities runs the steps of spec §4.5 for one
// parent/child edge, mutating child's final_mult and foreign_sum in place.
// parent is left unchanged.
func propagateFinalMultiplicities(d *dispatch.Dispatcher, parent, child *tuple.Table, c jointree.Constraint) error {
	sourceRows := append([]tuple.Tuple(nil), parent.Rows()...)
	for i := range sourceRows {
		sourceRows[i].FieldType = tuple.Source
	}

	// A child row w matches the parent values in [w-DeltaEnd, w-DeltaStart],
	// so each endpoint takes its closedness from the opposite delta.
	startTbl, err := buildBoundary(d, child, -c.DeltaEnd, c.EqEnd, tuple.KindToStart)
	if err != nil {
		return err
	}
	endTbl, err := buildBoundary(d, child, -c.DeltaStart, c.EqStart, tuple.KindToEnd)
	if err != nil {
		return err
	}

	combRows := make([]tuple.Tuple, 0, len(sourceRows)+startTbl.Len()+endTbl.Len())
	combRows = append(combRows, sourceRows...)
	combRows = append(combRows, startTbl.Rows()...)
	combRows = append(combRows, endTbl.Rows()...)
	for i := range combRows {
		combRows[i].LocalWeight = combRows[i].LocalMult
		combRows[i].ForeignSum = 0
		combRows[i].ForeignInterval = 0
	}
	comb := tuple.NewTableFromRows("comb", nil, combRows)

	if err := dispatch.Sort(d, comb, tuple.KindJoinAttr); err != nil {
		return err
	}
	if err := dispatch.BatchedLinearPass(d, comb, tuple.KindComputeForeignSum); err != nil {
		return err
	}
	if err := dispatch.Sort(d, comb, tuple.KindPairwise); err != nil {
		return err
	}
	if err := dispatch.BatchedLinearPass(d, comb, tuple.KindComputeForeignInterval); err != nil {
		return err
	}
	if err := dispatch.Sort(d, comb, tuple.KindEndFirst); err != nil {
		return err
	}

	n := child.Len()
	if comb.Len() < n {
		return joinerr.New(joinerr.InvariantViolated, "phase2.propagateFinalMultiplicities", "combined table shorter than child after END_FIRST sort: %d < %d", comb.Len(), n)
	}

	combined := make([]tuple.Tuple, 0, 2*n)
	combined = append(combined, comb.Rows()[:n]...)
	combined = append(combined, child.Rows()...)
	ops := make([]tuple.Op, n)
	for i := 0; i < n; i++ {
		ops[i] = tuple.Op{I: uint32(i), J: uint32(n + i)}
	}
	if err := d.Dispatch(combined, ops, tuple.KindUpdateTargetFinalMultiplicity); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		child.Set(i, combined[n+i])
	}
	return nil
}
