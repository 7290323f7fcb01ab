// Package phase3 implements the oblivious distribute-and-expand phase
// (spec §4.6): each table is replicated so every row appears exactly
// final_mult times, using a monotone distribution network followed by a
// single expansion pass, rather than any data-dependent copy loop.
package phase3

import (
	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/internal/oblivious"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Run expands every table in tree in place (spec §4.6's "for each table
// independently" — order across tables does not matter, unlike phases 1
// and 2, so this walks the arena directly rather than a tree order).
func Run(d *dispatch.Dispatcher, tree *jointree.Tree) error {
	for id := jointree.NodeID(0); int(id) < tree.Len(); id++ {
		out, err := Expand(d, tree.Table(id))
		if err != nil {
			return err
		}
		tree.SetTable(id, out)
	}
	return nil
}

// Expand runs the eight steps of spec §4.6 against t and returns the
// expanded table; t itself is left untouched.
func Expand(d *dispatch.Dispatcher, t *tuple.Table) (*tuple.Table, error) {
	work := t.Clone()

	if err := dispatch.BatchedMap(d, work, tuple.KindInitDstIdx, [2]int32{}); err != nil {
		return nil, err
	}
	if err := dispatch.BatchedLinearPass(d, work, tuple.KindComputeDstIdx); err != nil {
		return nil, err
	}

	n := work.Len()
	outSize := int64(0)
	if n > 0 {
		last := work.At(n - 1)
		outSize = last.DstIdx + last.FinalMult
	}
	if outSize == 0 {
		return tuple.NewTable(t.Name(), t.Schema()), nil
	}

	if err := dispatch.BatchedMap(d, work, tuple.KindMarkZeroMultPadding, [2]int32{}); err != nil {
		return nil, err
	}
	if err := dispatch.Sort(d, work, tuple.KindPaddingLast); err != nil {
		return nil, err
	}

	nPrime := int(outSize)
	keep := n
	if keep > nPrime {
		keep = nPrime
	}
	work.Truncate(keep)
	if work.Len() < nPrime {
		addDistPadding(work, nPrime-work.Len())
	}

	if err := dispatch.BatchedMap(d, work, tuple.KindInitIndex, [2]int32{}); err != nil {
		return nil, err
	}
	if err := dispatch.BatchedLinearPass(d, work, tuple.KindIncrementIndex); err != nil {
		return nil, err
	}

	for s := oblivious.LargestPowerOfTwoAtMost(nPrime); s >= 1; s /= 2 {
		if err := dispatch.BatchedDistributePass(d, work, s, tuple.KindDistribute); err != nil {
			return nil, err
		}
	}

	if err := dispatch.BatchedLinearPass(d, work, tuple.KindExpandCopy); err != nil {
		return nil, err
	}

	out := tuple.NewTableFromRows(t.Name(), t.Schema(), work.Rows())
	return out, nil
}

// addDistPadding appends n DIST_PADDING rows, each positioned past the end
// of the table so PaddingLast/Distribute treat them uniformly with the
// padding added by the earlier truncate-to-N' step.
func addDistPadding(t *tuple.Table, n int) {
	base := int64(t.Len())
	for i := 0; i < n; i++ {
		t.Append(tuple.Tuple{
			FieldType:     tuple.DistPadding,
			OriginalIndex: base + int64(i),
			JoinAttr:      tuple.SentinelPosInf,
		})
	}
}
