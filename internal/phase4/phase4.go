// Package phase4 implements the align-and-concatenate phase (spec §4.7):
// it walks the join tree's edges in pre-order, aligning each expanded
// child against the running accumulator row-for-row and horizontally
// concatenating, so that after the full walk row i of the accumulator is
// one complete join result tuple.
package phase4

import (
	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Run aligns and concatenates every table in tree, starting from the
// (already Phase-3-expanded) root, and returns the final join result.
// Phase 3 must have run over every node in tree first.
func Run(d *dispatch.Dispatcher, tree *jointree.Tree) (*tuple.Table, error) {
	if tree.Len() == 0 {
		return tuple.NewTable("result", nil), nil
	}
	accumulator := tree.Table(tree.Root()).Clone()
	for _, e := range tree.PreOrderEdges() {
		var err error
		accumulator, err = align(d, accumulator, tree.Table(e.Child))
		if err != nil {
			return nil, err
		}
	}
	return accumulator, nil
}

// align runs the four steps of spec §4.7 for one edge: it sorts a clone of
// accumulator and a clone of child in place, then returns their horizontal
// concatenation. Neither input table is mutated.
func align(d *dispatch.Dispatcher, accumulator, child *tuple.Table) (*tuple.Table, error) {
	acc := accumulator.Clone()
	if err := dispatch.Sort(d, acc, tuple.KindJoinThenOther); err != nil {
		return nil, err
	}

	ch := child.Clone()
	if err := dispatch.BatchedMap(d, ch, tuple.KindComputeAlignmentKey, [2]int32{}); err != nil {
		return nil, err
	}
	if err := dispatch.Sort(d, ch, tuple.KindAlignmentKey); err != nil {
		return nil, err
	}

	return tuple.ConcatHorizontal("accumulator", acc, ch)
}
